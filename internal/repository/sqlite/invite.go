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

var _ repository.InviteRepository = (*DB)(nil)

// FindUnusedInvite returns the invite with the given code if it has not been
// redeemed. Used and unknown codes both yield apperror.ErrNotFound.
func (db *DB) FindUnusedInvite(ctx context.Context, code string) (*model.Invite, error) {
	var (
		inv    model.Invite
		usedAt sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, code, used, created_at, used_at
		 FROM invites WHERE code = ? AND used = 0`,
		code,
	).Scan(
		&inv.ID,
		&inv.Code,
		&inv.Used,
		&inv.CreatedAt,
		&usedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("invite", code)
		}
		return nil, apperror.Unavailable(fmt.Sprintf("sqlite: finding invite %q", code), err)
	}

	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	return &inv, nil
}

// CreateInvite stores a fresh, unused invite for code.
func (db *DB) CreateInvite(ctx context.Context, code string) (*model.Invite, error) {
	inv := model.Invite{
		ID:        xid.New().String(),
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO invites (id, code, used, created_at) VALUES (?, ?, 0, ?)`,
		inv.ID,
		inv.Code,
		inv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("invite", code)
		}
		return nil, apperror.Unavailable(fmt.Sprintf("sqlite: inserting invite %q", code), err)
	}

	return &inv, nil
}

// MarkInviteUsed is a compare-and-set on the used column: the UPDATE only
// matches a row that is still unused, and RowsAffected tells the caller
// whether it won. A second call for the same code always reports false.
func (db *DB) MarkInviteUsed(ctx context.Context, code string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE invites SET used = 1, used_at = ? WHERE code = ? AND used = 0`,
		time.Now().UTC(),
		code,
	)
	if err != nil {
		return false, apperror.Unavailable(fmt.Sprintf("sqlite: marking invite %q used", code), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Unavailable(fmt.Sprintf("sqlite: rows affected for invite %q", code), err)
	}

	return n == 1, nil
}
