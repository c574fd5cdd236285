// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses, owns the session
//	Service (Business layer) → identity resolution, invite rules, access predicates
//	Repository (Data layer)  → reads/writes to the database
//
// AccessService takes repository interfaces, not *sqlite.DB, so tests drive it
// with in-memory fakes.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/invite-chat/internal/apperror"
	"github.com/sakif/invite-chat/internal/model"
	"github.com/sakif/invite-chat/internal/repository"
	"github.com/sakif/invite-chat/internal/session"
)

const (
	// InviteCodeBytes is the number of random bytes in an invite code; the
	// hex encoding is twice as long.
	InviteCodeBytes = 4

	// maxCodeAttempts bounds retries when a freshly generated code collides
	// with an existing one.
	maxCodeAttempts = 5
)

// AccessOptions selects between the two admin-assignment variants.
type AccessOptions struct {
	// FirstUserAdmin makes the first username ever registered an admin.
	// When false nobody is created as admin.
	FirstUserAdmin bool
}

// AccessService decides who may chat, who may administer, and whether an
// invite code is still redeemable.
type AccessService struct {
	users   repository.UserRepository
	invites repository.InviteRepository
	opts    AccessOptions
	random  io.Reader
	logger  *slog.Logger
}

// NewAccessService creates an AccessService.
func NewAccessService(
	users repository.UserRepository,
	invites repository.InviteRepository,
	opts AccessOptions,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		users:   users,
		invites: invites,
		opts:    opts,
		random:  rand.Reader,
		logger:  logger,
	}
}

// ResolveLoginIdentity returns the user registered under username, creating
// one on first sight. Any string is accepted, including the empty string.
//
// Two first-time logins for the same name can race to create the record. The
// store rejects the loser with ErrConflict and the loser then reads the
// winner's row, so exactly one record exists per username.
func (s *AccessService) ResolveLoginIdentity(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/access: looking up %q: %w", username, err)
	}

	user, err = s.users.CreateUser(ctx, username, s.opts.FirstUserAdmin)
	if errors.Is(err, apperror.ErrConflict) {
		user, err = s.users.FindUserByUsername(ctx, username)
	}
	if err != nil {
		return nil, fmt.Errorf("service/access: registering %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Bool("admin", user.IsAdmin),
	)
	return user, nil
}

// CanEnterChat reports whether the session may see the chat surface: the
// logged-in user is an admin, or the session redeemed an invite.
func (s *AccessService) CanEnterChat(st session.State) bool {
	return (st.User != nil && st.User.IsAdmin) || st.CanChat
}

// CanEnterAdmin reports whether the session belongs to an admin.
func (s *AccessService) CanEnterAdmin(st session.State) bool {
	return st.User != nil && st.User.IsAdmin
}

// RedeemInvite consumes code. It fails with apperror.ErrInvalidInvite when the
// code is unknown or was already consumed, including by a concurrent caller
// that won the race between lookup and update.
func (s *AccessService) RedeemInvite(ctx context.Context, code string) (*model.Invite, error) {
	inv, err := s.invites.FindUnusedInvite(ctx, code)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidInvite(code)
		}
		return nil, fmt.Errorf("service/access: finding invite: %w", err)
	}

	won, err := s.invites.MarkInviteUsed(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/access: consuming invite: %w", err)
	}
	if !won {
		s.logger.Warn("invite lost redemption race", slog.String("inviteID", inv.ID))
		return nil, apperror.InvalidInvite(code)
	}

	inv.Used = true
	s.logger.Info("invite redeemed", slog.String("inviteID", inv.ID))
	return inv, nil
}

// GenerateInvite creates and stores a new random invite code.
func (s *AccessService) GenerateInvite(ctx context.Context) (*model.Invite, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("service/access: generating code: %w", err)
		}

		inv, err := s.invites.CreateInvite(ctx, code)
		if err == nil {
			s.logger.Info("invite created", slog.String("inviteID", inv.ID))
			return inv, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/access: storing invite: %w", err)
		}
		s.logger.Warn("invite code collision", slog.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("service/access: no free invite code after %d attempts: %w",
		maxCodeAttempts, apperror.ErrConflict)
}

// UserCount returns the number of registered users, shown on the admin panel.
func (s *AccessService) UserCount(ctx context.Context) (int, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/access: counting users: %w", err)
	}
	return n, nil
}

func (s *AccessService) newCode() (string, error) {
	b := make([]byte, InviteCodeBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// JoinURL builds the shareable link for an invite code, e.g.
// JoinURL("https://chat.example.com", "a1b2c3d4") → "https://chat.example.com/join/a1b2c3d4".
func JoinURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/join/" + url.PathEscape(code)
}
