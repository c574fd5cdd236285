// Package repository declares the storage contracts the access service
// depends on. The sqlite subpackage is the only production implementation;
// tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/invite-chat/internal/model"
)

type UserRepository interface {
	// FindUserByUsername returns apperror.ErrNotFound when no user has the name.
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	// CreateUser inserts a user. When firstUserAdmin is set the admin flag is
	// decided atomically with the insert: true only if the table was empty.
	// A duplicate username yields apperror.ErrConflict.
	CreateUser(ctx context.Context, username string, firstUserAdmin bool) (*model.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type InviteRepository interface {
	// FindUnusedInvite returns apperror.ErrNotFound for unknown or used codes.
	FindUnusedInvite(ctx context.Context, code string) (*model.Invite, error)
	// CreateInvite yields apperror.ErrConflict when the code already exists.
	CreateInvite(ctx context.Context, code string) (*model.Invite, error)
	// MarkInviteUsed flips used from false to true and reports whether this
	// call performed the flip. Concurrent callers for one code see exactly one true.
	MarkInviteUsed(ctx context.Context, code string) (bool, error)
}
