// Package audit records the local security events this module's
// components emit (registration, renewal, revocation, signing) to slog
// with an "AUDIT_TRAIL" log_type marker and a UTC timestamp, since this
// module has no server-side audit table of its own to write to.
package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes one audit record.
type EventType string

const (
	EventRegistered    EventType = "REGISTERED"
	EventRenewed       EventType = "SECRET_RENEWED"
	EventRevoked       EventType = "REVOKED"
	EventAuthenticated EventType = "AUTHENTICATED"
	EventAuthFailed    EventType = "AUTHENTICATION_FAILED"
	EventSigned        EventType = "SIGNED"
	EventDeleted       EventType = "DELETED"
)

// Service is the contract every component logs security events through.
type Service interface {
	Log(ctx context.Context, event EventType, userID, projectID string, metadata map[string]string)
}

// Logger writes structured audit records to slog with a "log_type":
// "AUDIT_TRAIL" marker so log aggregators can route them to a separate
// index, independent of the main application logger's formatting.
type Logger struct {
	logger        *slog.Logger
	correlationID func() string
}

// New builds a Logger writing to its own JSON handler on stdout, keeping
// audit formatting independent of whatever the main app logger is
// configured to do.
func New() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{logger: slog.New(handler), correlationID: uuid.NewString}
}

// NewWithLogger lets the caller supply an existing *slog.Logger instead
// (e.g. so tests can capture output), bypassing the stdout JSON handler.
func NewWithLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger, correlationID: uuid.NewString}
}

func (l *Logger) Log(ctx context.Context, event EventType, userID, projectID string, metadata map[string]string) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("event", string(event)),
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
		slog.String("correlation_id", l.correlationID()),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	for k, v := range metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}

var _ Service = (*Logger)(nil)
