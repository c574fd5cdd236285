package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/invite-chat/internal/apperror"
	"github.com/sakif/invite-chat/internal/auth"
	"github.com/sakif/invite-chat/internal/service"
	"github.com/sakif/invite-chat/internal/session"
)

// ChatHandler serves the page flow: login, chat, admin panel and invites.
//
// STATE MACHINE:
// A caller's session moves Anonymous → Identified-Blocked → Identified-Allowed.
// Logging in identifies; redeeming an invite (before or after login) or being
// an admin allows. Nothing moves a session backwards.
type ChatHandler struct {
	access   *service.AccessService
	sessions *session.Manager
	pages    *Renderer
	logger   *slog.Logger

	// baseURL overrides the origin used in generated join links.
	baseURL        string
	uploadsEnabled bool
}

// ChatOptions carries the deployment settings the pages need.
type ChatOptions struct {
	PublicBaseURL  string
	UploadsEnabled bool
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(
	access *service.AccessService,
	sessions *session.Manager,
	pages *Renderer,
	opts ChatOptions,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		access:         access,
		sessions:       sessions,
		pages:          pages,
		logger:         logger,
		baseURL:        opts.PublicBaseURL,
		uploadsEnabled: opts.UploadsEnabled,
	}
}

type pageData struct {
	Title          string
	Username       string
	IsAdmin        bool
	UploadsEnabled bool
	InviteLink     string
	UserCount      int
}

// HandleLoginPage renders the login form.
//
// HTTP: GET /
func (h *ChatHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusOK, PageLogin, pageData{Title: "Login"})
}

// HandleLogin identifies the caller by the submitted username. There is no
// password: any string is accepted, including the empty one.
//
// HTTP: POST /login (form field "username")
func (h *ChatHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")

	user, err := h.access.ResolveLoginIdentity(r.Context(), username)
	if err != nil {
		serverError(w, r, h.logger, "login failed", err)
		return
	}

	if err := h.sessions.Login(r.Context(), user); err != nil {
		serverError(w, r, h.logger, "storing login in session failed", err)
		return
	}

	h.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.Bool("admin", user.IsAdmin),
	)
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// HandleChat renders the chat for allowed callers and the blocked page for
// everyone else. Anonymous callers never get here (auth.RequireIdentity).
//
// HTTP: GET /chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	if !st.Identified() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := pageData{
		Username:       st.User.Username,
		IsAdmin:        st.User.IsAdmin,
		UploadsEnabled: h.uploadsEnabled,
	}

	if !h.access.CanEnterChat(st) {
		data.Title = "Waiting for an invite"
		h.pages.Render(w, http.StatusOK, PageBlocked, data)
		return
	}
	data.Title = "Chat"
	h.pages.Render(w, http.StatusOK, PageChat, data)
}

// HandleAdmin renders the admin panel with the last generated invite link.
//
// HTTP: GET /admin (auth.RequireAdmin)
func (h *ChatHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	if !h.access.CanEnterAdmin(st) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	count, err := h.access.UserCount(r.Context())
	if err != nil {
		serverError(w, r, h.logger, "counting users failed", err)
		return
	}

	h.pages.Render(w, http.StatusOK, PageAdmin, pageData{
		Title:      "Admin",
		Username:   st.User.Username,
		IsAdmin:    true,
		InviteLink: st.LastLink,
		UserCount:  count,
	})
}

// HandleGenerateLink creates a single-use invite and remembers its join URL
// in the admin's session.
//
// HTTP: POST /generate-link (auth.RequireAdmin)
func (h *ChatHandler) HandleGenerateLink(w http.ResponseWriter, r *http.Request) {
	inv, err := h.access.GenerateInvite(r.Context())
	if err != nil {
		serverError(w, r, h.logger, "generating invite failed", err)
		return
	}

	h.sessions.SetLastLink(r.Context(), service.JoinURL(h.origin(r), inv.Code))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// HandleJoin redeems an invite code and grants chat access to the caller's
// session. The session is left untouched when the code is unknown or spent.
//
// HTTP: GET /join/{code}
func (h *ChatHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := h.access.RedeemInvite(r.Context(), code); err != nil {
		if errors.Is(err, apperror.ErrInvalidInvite) {
			h.logger.Info("invalid invite presented", slog.String("remote", r.RemoteAddr))
			http.Error(w, "This invite link is invalid or has already been used.", http.StatusBadRequest)
			return
		}
		serverError(w, r, h.logger, "redeeming invite failed", err)
		return
	}

	h.sessions.GrantChat(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// state returns the session state stored by the auth middleware, loading
// it directly on routes mounted without a guard.
func (h *ChatHandler) state(r *http.Request) session.State {
	if st, ok := auth.StateFromContext(r.Context()); ok {
		return st
	}
	return h.sessions.Load(r.Context())
}

// origin returns the scheme://host used for join links: the configured base
// URL, else what the request itself was addressed to.
func (h *ChatHandler) origin(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
