// Package session owns the per-caller server-side state bag: who the caller
// logged in as, whether an invite granted them chat access, and the last
// invite link an admin generated.
//
// State lives in an scs.SessionManager keyed by an opaque random token that
// travels in the session cookie. Handlers never touch scs directly; they read
// a State snapshot through Manager.Load and mutate it through the typed
// setters, which only ever address the caller's own session.
package session

import (
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/sakif/invite-chat/internal/model"
)

// Session keys.
const (
	KeyUser     = "user"
	KeyCanChat  = "can_chat"
	KeyLastLink = "last_link"
)

func init() {
	// scs serialises values with encoding/gob; concrete types stored behind
	// interface{} must be registered.
	gob.Register(model.User{})
}

// Options configures cookie and expiry behaviour.
type Options struct {
	// IdleTimeout expires a session that has not been touched for this long.
	IdleTimeout time.Duration
	// Lifetime is the absolute maximum age of a session.
	Lifetime time.Duration
	// Secure marks the cookie Secure and switches to a __Host- prefixed name.
	Secure bool
	// CleanupInterval controls how often expired rows are purged from the
	// SQLite store. Zero disables the background sweep.
	CleanupInterval time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:     24 * time.Hour,
		Lifetime:        7 * 24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// State is a read-only snapshot of one caller's session.
type State struct {
	// User is the record copied at login time; nil for anonymous callers.
	User     *model.User
	CanChat  bool
	LastLink string
}

// Identified reports whether the caller has logged in.
func (s State) Identified() bool {
	return s.User != nil
}

// Manager is the session store handed to every route handler.
type Manager struct {
	sm    *scs.SessionManager
	store *sqlite3store.SQLite3Store
}

// New creates a Manager persisting sessions in the sessions table of db.
func New(db *sql.DB, opts Options) *Manager {
	store := sqlite3store.NewWithCleanupInterval(db, opts.CleanupInterval)
	m := newManager(opts)
	m.sm.Store = store
	m.store = store
	return m
}

// NewMemory creates a Manager backed by scs's in-process memory store.
func NewMemory(opts Options) *Manager {
	return newManager(opts)
}

func newManager(opts Options) *Manager {
	sm := scs.New()

	if opts.Lifetime > 0 {
		sm.Lifetime = opts.Lifetime
	}
	if opts.IdleTimeout > 0 {
		sm.IdleTimeout = opts.IdleTimeout
	}

	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"
	sm.Cookie.Secure = opts.Secure
	if opts.Secure {
		sm.Cookie.Name = "__Host-session"
	}

	return &Manager{sm: sm}
}

// Close stops the background cleanup goroutine of the SQLite store, if any.
func (m *Manager) Close() {
	if m.store != nil {
		m.store.StopCleanup()
	}
}

// LoadAndSave is the middleware that loads the caller's session into the
// request context and commits any changes before the response is written.
func (m *Manager) LoadAndSave(next http.Handler) http.Handler {
	return m.sm.LoadAndSave(next)
}

// Load returns the caller's current session state.
func (m *Manager) Load(ctx context.Context) State {
	var st State
	if u, ok := m.sm.Get(ctx, KeyUser).(model.User); ok {
		st.User = &u
	}
	st.CanChat = m.sm.GetBool(ctx, KeyCanChat)
	st.LastLink = m.sm.GetString(ctx, KeyLastLink)
	return st
}

// Login records the user snapshot for the caller. The session token is
// renewed first so an identifier issued before login cannot be reused
// afterwards; existing values such as a chat grant carry over.
func (m *Manager) Login(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("session: login with nil user")
	}
	if err := m.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("session: renewing token: %w", err)
	}
	m.sm.Put(ctx, KeyUser, *user)
	return nil
}

// GrantChat marks the caller's session as allowed to chat. There is no
// inverse operation.
func (m *Manager) GrantChat(ctx context.Context) {
	m.sm.Put(ctx, KeyCanChat, true)
}

// SetLastLink remembers the most recently generated invite URL.
func (m *Manager) SetLastLink(ctx context.Context, link string) {
	m.sm.Put(ctx, KeyLastLink, link)
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.sm.Cookie.Name
}
