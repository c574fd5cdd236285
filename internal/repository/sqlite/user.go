package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/invite-chat/internal/apperror"
	"github.com/sakif/invite-chat/internal/model"
	"github.com/sakif/invite-chat/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// FindUserByUsername looks a user up by the exact username string.
// Returns apperror.ErrNotFound if nobody has logged in with that name yet.
func (db *DB) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, is_admin, is_approved, created_at
		 FROM users WHERE username = ?`,
		username,
	).Scan(
		&u.ID,
		&u.Username,
		&u.IsAdmin,
		&u.IsApproved,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, apperror.Unavailable(fmt.Sprintf("sqlite: finding user %q", username), err)
	}

	return &u, nil
}

// CreateUser inserts a new user and returns the stored record.
//
// FIRST USER BECOMES ADMIN:
// The admin flag is computed by the INSERT itself from "does any user row
// exist yet". Because the statement runs under SQLite's write lock there is
// no window between the check and the write in which a second first-time
// login could also observe an empty table.
//
// The is_approved column is always written as true.
func (db *DB) CreateUser(ctx context.Context, username string, firstUserAdmin bool) (*model.User, error) {
	u := model.User{
		ID:         xid.New().String(),
		Username:   username,
		IsApproved: true,
		CreatedAt:  time.Now().UTC(),
	}

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, username, is_admin, is_approved, created_at)
		 SELECT ?, ?,
		        CASE WHEN ? AND NOT EXISTS (SELECT 1 FROM users) THEN 1 ELSE 0 END,
		        1, ?
		 RETURNING is_admin`,
		u.ID,
		u.Username,
		firstUserAdmin,
		u.CreatedAt,
	).Scan(&u.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("user", username)
		}
		return nil, apperror.Unavailable(fmt.Sprintf("sqlite: inserting user %q", username), err)
	}

	return &u, nil
}

// CountUsers returns the number of registered users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, apperror.Unavailable("sqlite: counting users", err)
	}
	return n, nil
}
