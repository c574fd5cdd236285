// Package main is the entry point for the invite-only chat server.
//
// The main package stays minimal. Its job is to:
// 1. Read configuration (environment, optionally a .env file)
// 2. Create dependencies (logger, database, sessions, services, uploader)
// 3. Start the application
//
// All actual logic lives in the internal packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sakif/invite-chat/internal/config"
	sqliteRepo "github.com/sakif/invite-chat/internal/repository/sqlite"
	"github.com/sakif/invite-chat/internal/server"
	"github.com/sakif/invite-chat/internal/service"
	"github.com/sakif/invite-chat/internal/session"
	"github.com/sakif/invite-chat/internal/storage"
)

func main() {
	// === 1. CONFIGURATION ===
	// A missing .env file is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE ===
	// os.MkdirAll creates the data directory if needed (like `mkdir -p`).
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database",
			slog.String("path", cfg.DBPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. SESSIONS AND ACCESS RULES ===
	sessions := session.New(db.Conn(), session.Options{
		IdleTimeout:     cfg.SessionIdleTimeout,
		Lifetime:        cfg.SessionLifetime,
		Secure:          !cfg.IsDevelopment(),
		CleanupInterval: session.DefaultOptions().CleanupInterval,
	})

	access := service.NewAccessService(db, db, service.AccessOptions{
		FirstUserAdmin: cfg.FirstUserAdmin,
	}, logger)

	// === 5. UPLOADS ===
	// Optional: without a bucket the server runs and /upload answers 503.
	var uploader storage.Uploader
	if cfg.Upload.Enabled() {
		s3Uploader, err := storage.NewS3Uploader(context.Background(), cfg.Upload)
		if err != nil {
			logger.Error("failed to configure uploads", slog.String("error", err.Error()))
			os.Exit(1)
		}
		uploader = s3Uploader
		logger.Info("image uploads enabled",
			slog.String("bucket", cfg.Upload.Bucket),
			slog.String("publicURL", storage.PublicBaseURL(cfg.Upload)),
		)
	} else {
		logger.Warn("UPLOAD_BUCKET not set; image uploads are disabled")
	}

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, server.Deps{
		DB:       db,
		Sessions: sessions,
		Access:   access,
		Uploader: uploader,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		sessions.Close()
		db.Close()
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM) and
	// closes the database on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
