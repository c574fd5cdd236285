// Package auth guards routes based on the caller's session state.
package auth

import (
	"context"
	"net/http"

	"github.com/sakif/invite-chat/internal/session"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so nothing else can read
// or shadow the stored value.
type contextKey string

const stateKey contextKey = "sessionState"

// StateLoader reads the caller's session. *session.Manager satisfies it.
type StateLoader interface {
	Load(ctx context.Context) session.State
}

// AdminChecker decides whether a session may use the admin surface.
// *service.AccessService satisfies it.
type AdminChecker interface {
	CanEnterAdmin(st session.State) bool
}

// RequireIdentity lets the request through only when the caller has logged
// in. Anonymous callers are redirected to the login page with 303 See Other.
//
// The loaded State is stored in the request context so handlers do not load
// it a second time; see StateFromContext.
//
// The session middleware (Manager.LoadAndSave) must run before this one.
func RequireIdentity(sessions StateLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := sessions.Load(r.Context())
			if !st.Identified() {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, withState(r, st))
		})
	}
}

// RequireAdmin rejects every caller that is not a logged-in admin with a
// plain-text 403. Unlike RequireIdentity it never redirects: an anonymous
// caller gets the same answer as a logged-in non-admin.
func RequireAdmin(sessions StateLoader, access AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := sessions.Load(r.Context())
			if !access.CanEnterAdmin(st) {
				http.Error(w, "Access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, withState(r, st))
		})
	}
}

// StateFromContext returns the State stored by RequireIdentity or
// RequireAdmin. ok is false on unguarded routes.
func StateFromContext(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(stateKey).(session.State)
	return st, ok
}

func withState(r *http.Request, st session.State) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), stateKey, st))
}
