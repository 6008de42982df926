package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"jwtpizza.org/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Audit event names.
const (
	EventRegister      = "auth.register"
	EventLogin         = "auth.login"
	EventLogout        = "auth.logout"
	EventProfileUpdate = "auth.profile.update"
	EventDenied        = "authz.denied"
	EventFranchiseAdd  = "franchise.create"
	EventFranchiseDel  = "franchise.delete"
	EventStoreAdd      = "store.create"
	EventStoreDel      = "store.delete"
	EventMenuAdd       = "menu.add"
	EventOrderCreate   = "order.create"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry to the context logger, enriched with the request id and
// the acting user.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	e := zerolog.Ctx(ctx).Info().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if actor := auth.ActorFromContext(ctx); actor != nil {
		e = e.Str("user_id", actor.UserID)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	e.Interface("fields", fields).Msg("audit")
	return nil
}
