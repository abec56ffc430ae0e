// Package audit records session and workflow events as structured log
// entries so a trail of who did what to which grievance survives locally.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"nivaran.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	subjectKey   ctxKey = "audit_subject"
)

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithSubject attaches the acting user's id to the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectKey, subject)
}

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	entry := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
		zap.Time("at", time.Now().UTC()),
	}
	if rid := fromContext(ctx, requestIDKey); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if subject := fromContext(ctx, subjectKey); subject != "" {
		entry = append(entry, zap.String("user_id", subject))
	}
	if len(fields) > 0 {
		entry = append(entry, zap.Any("fields", fields))
	}

	obs.Logger().Info("audit", entry...)
	return nil
}
