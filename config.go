package mpinclient

import (
	"errors"
	"log/slog"
	"os"

	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/userstore"
)

// ErrEmptyProjectID is returned by New when Config.ProjectID is blank,
// per spec.md §6/§7's Configuration::EmptyProjectId.
var ErrEmptyProjectID = errors.New("mpinclient: projectId must not be empty")

// Config configures one Client. UserStore and Transport are optional: if
// UserStore is nil, New builds a PostgresStore when DatabaseURL is set
// (using TokenEncryptionKey to seal the token field at rest), else falls
// back to an in-memory store. If Transport is nil, New builds an
// HTTPTransport from PlatformURL, applying the per-identity courtesy
// limiter when RateLimitPerSecond is positive.
type Config struct {
	ProjectID    string
	PlatformURL  string
	DeviceName   string
	Environment  string // "production" selects a JSON log handler; anything else selects text
	LoggingLevel slog.Level
	UserStore    userstore.Store
	Transport    transport.Transport
	SentryDSN    string

	// DatabaseURL and TokenEncryptionKey build a PostgresStore when
	// UserStore is nil. TokenEncryptionKey must be 32 bytes of hex (64
	// characters); both must be set together.
	DatabaseURL        string
	TokenEncryptionKey string

	// RateLimitPerSecond enables the courtesy per-identity outbound
	// throttle on the default HTTPTransport when positive. RateLimitBurst
	// defaults to 1 if unset.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// LoadConfigFromEnv populates a Config from the environment, the way
// cmd/api/main.go reads its own settings: MPIN_PROJECT_ID,
// MPIN_PLATFORM_URL, MPIN_DEVICE_NAME, MPIN_ENV, MPIN_LOG_LEVEL,
// DATABASE_URL, MPIN_TOKEN_ENCRYPTION_KEY, SENTRY_DSN. UserStore/Transport
// are left nil for New to build from DatabaseURL/PlatformURL.
func LoadConfigFromEnv() Config {
	return Config{
		ProjectID:          os.Getenv("MPIN_PROJECT_ID"),
		PlatformURL:        os.Getenv("MPIN_PLATFORM_URL"),
		DeviceName:         envOr("MPIN_DEVICE_NAME", "unknown-device"),
		Environment:        envOr("MPIN_ENV", "development"),
		LoggingLevel:       parseLevel(os.Getenv("MPIN_LOG_LEVEL")),
		SentryDSN:          os.Getenv("SENTRY_DSN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		TokenEncryptionKey: os.Getenv("MPIN_TOKEN_ENCRYPTION_KEY"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(raw string) slog.Level {
	var lvl slog.Level
	if raw == "" {
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

