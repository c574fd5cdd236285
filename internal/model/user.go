// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a chat participant identified only by the username they typed at
// login. Records are created on first login and never updated afterwards.
//
// IsApproved is always written as true and nothing reads it; it is kept so
// existing rows and templates stay compatible with data written by older
// deployments.
type User struct {
	ID         string    `json:"id"         db:"id"`
	Username   string    `json:"username"   db:"username"`
	IsAdmin    bool      `json:"isAdmin"    db:"is_admin"`
	IsApproved bool      `json:"isApproved" db:"is_approved"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
