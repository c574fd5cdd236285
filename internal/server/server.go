// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects handlers, middleware, the
// realtime hub and routes, and decides how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
// main.go creates the database, session manager, access service and uploader
// and passes them in through Deps. New builds the handlers around them. All
// dependencies are assembled in one place (the composition root) instead of
// being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/invite-chat/internal/auth"
	"github.com/sakif/invite-chat/internal/config"
	"github.com/sakif/invite-chat/internal/handler"
	"github.com/sakif/invite-chat/internal/middleware"
	"github.com/sakif/invite-chat/internal/realtime"
	sqliteRepo "github.com/sakif/invite-chat/internal/repository/sqlite"
	"github.com/sakif/invite-chat/internal/service"
	"github.com/sakif/invite-chat/internal/session"
	"github.com/sakif/invite-chat/internal/storage"
	"github.com/sakif/invite-chat/web"
)

// shutdownTimeout bounds how long in-flight requests and websocket pumps
// get to finish after a stop signal.
const shutdownTimeout = 30 * time.Second

// Deps are the long-lived components the server routes to. Uploader may be
// nil when uploads are not configured.
type Deps struct {
	DB       *sqliteRepo.DB
	Sessions *session.Manager
	Access   *service.AccessService
	Uploader storage.Uploader
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection, the session store's cleanup
// goroutine and the realtime hub. Start releases all three on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	deps   Deps
	hub    *realtime.Hub
}

// New creates a Server and registers every route.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
		hub:    realtime.NewHub(logger.With(slog.String("component", "realtime"))),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the realtime hub so callers can run it outside Start.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /               → login page
// POST   /login          → identify by username
// GET    /chat           → chat or blocked page          (RequireIdentity)
// GET    /admin          → admin panel                   (RequireAdmin)
// POST   /generate-link  → new invite link               (RequireAdmin)
// GET    /join/{code}    → redeem invite
// POST   /upload         → image attachment (JSON)
// GET    /ws             → websocket relay
// GET    /healthz        → liveness
// GET    /static/*       → embedded CSS and JS
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP, Logger, Recoverer run on every request
// 2. CSRF rejects cross-site POSTs before they reach a handler
// 3. The session middleware runs only on page routes; /ws, /upload and
//    /healthz never touch session state
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CSRF(middleware.DefaultCSRFConfig(
		s.config.CSRFKey(),
		s.config.IsDevelopment(),
		strconv.Itoa(s.config.Port),
		s.logger,
	)))

	// === Static Files ===
	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("loading static files: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// === Pages ===
	pages, err := handler.NewRenderer(web.Templates, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	chat := handler.NewChatHandler(s.deps.Access, s.deps.Sessions, pages, handler.ChatOptions{
		PublicBaseURL:  s.config.PublicBaseURL,
		UploadsEnabled: s.deps.Uploader != nil,
	}, s.logger)

	sessions := s.deps.Sessions
	s.router.Group(func(r chi.Router) {
		r.Use(sessions.LoadAndSave)

		r.Get("/", chat.HandleLoginPage)
		r.Post("/login", chat.HandleLogin)
		r.Get("/join/{code}", chat.HandleJoin)

		r.With(auth.RequireIdentity(sessions)).Get("/chat", chat.HandleChat)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(sessions, s.deps.Access))
			r.Get("/admin", chat.HandleAdmin)
			r.Post("/generate-link", chat.HandleGenerateLink)
		})
	})

	// === Uploads, realtime, health ===
	upload := handler.NewUploadHandler(s.deps.Uploader, s.config.Upload.MaxBytes, s.logger)
	s.router.Post("/upload", upload.HandleUpload)

	s.router.Handle("/ws", realtime.NewHandler(s.hub, realtime.Options{
		AllowedOrigins: s.config.WSAllowedOrigins,
		MaxMessageSize: s.config.WSMaxMessageSize,
	}, s.logger.With(slog.String("component", "realtime"))))

	var pinger handler.Pinger
	if s.deps.DB != nil {
		pinger = s.deps.DB
	}
	s.router.Get("/healthz", handler.NewHealthHandler(pinger).HandleHealth)

	return nil
}

// Start runs the realtime hub and the HTTP server until SIGINT or SIGTERM,
// then shuts everything down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections and wait for in-flight requests
// 2. Close every websocket connection and wait for their pumps
// 3. Stop the session cleanup goroutine and close the database
func (s *Server) Start() error {
	defer s.closeResources()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("env", s.config.Env),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := s.hub.Shutdown(shutdownTimeout); err != nil {
			s.logger.Warn("realtime hub did not stop cleanly", slog.String("error", err.Error()))
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeResources() {
	if s.deps.Sessions != nil {
		s.deps.Sessions.Close()
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}
}
