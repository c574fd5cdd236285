package realtime

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Options configures the websocket endpoint.
type Options struct {
	// AllowedOrigins lists scheme://host origins allowed to connect. Empty
	// means same-origin only; "*" allows any origin.
	AllowedOrigins []string
	// MaxMessageSize is the read limit per frame in bytes.
	MaxMessageSize int64
	// SendBuffer is the per-client outgoing queue length.
	SendBuffer int
}

// Handler upgrades HTTP requests into hub subscriptions.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger

	allowAll bool
	origins  map[string]struct{}
}

// NewHandler creates the /ws endpoint for hub.
func NewHandler(hub *Hub, opts Options, logger *slog.Logger) *Handler {
	h := &Handler{
		hub:     hub,
		opts:    opts,
		logger:  logger,
		origins: make(map[string]struct{}),
	}
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			h.allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			h.origins[n] = struct{}{}
		} else if o != "" {
			logger.Warn("ignoring invalid websocket origin", slog.String("origin", o))
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP handles GET /ws. No session or chat-access check is made.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		h.logger.Info("websocket upgrade failed",
			slog.String("addr", r.RemoteAddr),
			slog.String("origin", r.Header.Get("Origin")),
			slog.String("error", err.Error()),
		)
		return
	}
	if h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}

	c := newClient(conn, h.hub, r.RemoteAddr, h.opts.SendBuffer, h.logger)
	if !h.hub.Subscribe(c) {
		conn.Close()
		return
	}
	if !h.hub.spawn(c.writePump) || !h.hub.spawn(c.readPump) {
		conn.Close()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowAll {
		return true
	}
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if len(h.origins) == 0 {
		u, _ := url.Parse(n)
		return strings.EqualFold(u.Host, r.Host)
	}
	_, ok = h.origins[n]
	return ok
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
