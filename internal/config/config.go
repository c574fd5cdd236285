// Package config loads the server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSessionSecretLength is the minimum accepted length of SESSION_SECRET.
// The secret doubles as the CSRF key, which must be 32 bytes.
const MinSessionSecretLength = 32

// knownWeakSecrets are example values from documentation that must never run.
var knownWeakSecrets = []string{
	"change-me-to-a-32-byte-secret!!!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration.
type Config struct {
	Port           int    `env:"PORT" envDefault:"3000"`
	DBPath         string `env:"DB_PATH" envDefault:"data/chat.db"`
	SessionSecret  string `env:"SESSION_SECRET,required"`
	Env            string `env:"APP_ENV" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	FirstUserAdmin bool   `env:"FIRST_USER_ADMIN" envDefault:"true"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"24h"`
	SessionLifetime    time.Duration `env:"SESSION_LIFETIME" envDefault:"168h"`

	// Realtime relay
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	WSMaxMessageSize int64    `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	Upload UploadConfig
}

// UploadConfig describes the S3-compatible bucket chat images are stored in.
type UploadConfig struct {
	Bucket         string   `env:"UPLOAD_BUCKET"`
	Region         string   `env:"UPLOAD_REGION" envDefault:"us-east-1"`
	Endpoint       string   `env:"UPLOAD_ENDPOINT"`   // empty means AWS
	AccessKey      string   `env:"UPLOAD_ACCESS_KEY"` // empty falls back to the default credential chain
	SecretKey      string   `env:"UPLOAD_SECRET_KEY"`
	PublicURL      string   `env:"UPLOAD_PUBLIC_URL"` // empty derives the bucket's virtual-hosted URL
	AllowedFormats []string `env:"UPLOAD_ALLOWED_FORMATS" envSeparator:"," envDefault:"jpg,jpeg,png,gif,webp"`
	MaxBytes       int64    `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`
}

// Enabled reports whether uploads have a bucket to go to.
func (u UploadConfig) Enabled() bool {
	return u.Bucket != ""
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.Upload.PublicURL = strings.TrimRight(cfg.Upload.PublicURL, "/")
	for i, f := range cfg.Upload.AllowedFormats {
		cfg.Upload.AllowedFormats[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate one with: openssl rand -base64 32",
			MinSessionSecretLength, len(c.SessionSecret))
	}
	for _, weak := range knownWeakSecrets {
		if c.SessionSecret == weak {
			return errors.New("SESSION_SECRET is a known example value and must not be used")
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.SessionIdleTimeout <= 0 || c.SessionLifetime <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT and SESSION_LIFETIME must be positive")
	}
	if c.WSMaxMessageSize <= 0 {
		return errors.New("WS_MAX_MESSAGE_SIZE must be positive")
	}
	if (c.Upload.AccessKey == "") != (c.Upload.SecretKey == "") {
		return errors.New("UPLOAD_ACCESS_KEY and UPLOAD_SECRET_KEY must be set together")
	}
	return nil
}

// CSRFKey returns the 32-byte key used by the CSRF middleware.
func (c Config) CSRFKey() []byte {
	return []byte(c.SessionSecret[:MinSessionSecretLength])
}
