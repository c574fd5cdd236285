package model

import "time"

// Invite is a single-use code that grants chat access to whichever session
// redeems it first. Used flips from false to true exactly once.
type Invite struct {
	ID        string     `json:"id"        db:"id"`
	Code      string     `json:"code"      db:"code"`
	Used      bool       `json:"used"      db:"used"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UsedAt    *time.Time `json:"usedAt"    db:"used_at"`
}
