package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of administrative action being logged.
type AuditEvent string

const (
	AuditSessionDestroyed    AuditEvent = "session_destroyed"
	AuditUserSessionsRevoked AuditEvent = "user_sessions_revoked"
	AuditSessionsCleared     AuditEvent = "sessions_cleared"
	AuditSessionsSwept       AuditEvent = "sessions_swept"
)

// auditLogger wraps slog.Logger for structured audit logging of admin
// actions.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	al.logWeighted(event, r, 1, attrs...)
}

// logWeighted writes an audit entry that counts as n removed sessions in
// the anomaly windows.
func (al *auditLogger) logWeighted(event AuditEvent, r *http.Request, n int, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event, n)
	}
}

// logUserEvent records an event scoped to one user identity that removed
// the given number of sessions.
func (al *auditLogger) logUserEvent(event AuditEvent, r *http.Request, userID string, sessions int, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
		slog.Int("sessions", sessions),
	}
	attrs = append(attrs, extra...)
	al.logWeighted(event, r, sessions, attrs...)
}
