// Package audit records security-relevant actions (logins, password changes,
// account and attendee mutations) as structured log entries.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"confreg.org/internal/auth"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit entries to a dedicated named zap logger.
type Logger struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit")}
}

// Event logs one audit entry enriched with the request id and, when the
// request is authenticated, the acting principal.
func (l *Logger) Event(ctx context.Context, event string, fields ...zap.Field) {
	if l == nil {
		return
	}
	base := make([]zap.Field, 0, len(fields)+5)
	base = append(base, zap.String("event", event))
	if rid := RequestIDFromContext(ctx); rid != "" {
		base = append(base, zap.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		base = append(base,
			zap.Int64("actor_id", p.ID),
			zap.String("actor_kind", string(p.Kind)),
			zap.String("actor_role", string(p.Role)),
		)
	}
	l.log.Info("audit", append(base, fields...)...)
}
