package middleware

import (
	"log/slog"
	"net/http"

	"filippo.io/csrf/gorilla"
)

// CSRFConfig holds configuration for CSRF protection.
//
// filippo.io/csrf/gorilla rejects cross-origin state-changing requests using
// Fetch metadata (Sec-Fetch-Site) and the Origin header, so there is no token
// to embed in forms.
type CSRFConfig struct {
	// AuthKey is kept for API compatibility with gorilla/csrf.
	AuthKey []byte

	// TrustedOrigins are hosts (host:port, no scheme) allowed to send
	// cross-origin requests.
	TrustedOrigins []string

	Logger *slog.Logger
}

// DefaultCSRFConfig trusts the local dev origins when isDev is set.
func DefaultCSRFConfig(authKey []byte, isDev bool, port string, logger *slog.Logger) CSRFConfig {
	cfg := CSRFConfig{AuthKey: authKey, Logger: logger}
	if isDev {
		cfg.TrustedOrigins = []string{
			"localhost:" + port,
			"127.0.0.1:" + port,
		}
	}
	return cfg
}

// CSRF returns a middleware that blocks cross-site POSTs such as /login,
// /generate-link and /upload. Safe methods pass untouched, so GET /join/{code}
// links keep working when opened from another site.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []csrf.Option{
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := "unknown"
			if err := csrf.FailureReason(r); err != nil {
				reason = err.Error()
			}
			logger.Warn("CSRF validation failed",
				slog.String("reason", reason),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("secFetchSite", r.Header.Get("Sec-Fetch-Site")),
			)
			http.Error(w, "Forbidden - CSRF validation failed", http.StatusForbidden)
		})),
	}
	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}

	return csrf.Protect(cfg.AuthKey, opts...)
}
