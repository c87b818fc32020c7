package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/services/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"

	// SessionKey is the context key for the local session, when one was used
	SessionKey contextKey = "session"

	// accessLogKey is the context key for the access log entry being built
	accessLogKey contextKey = "access_log"
)

// GetRequestIDFromContext returns the id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithPrincipal adds the principal to the context
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	if entry, ok := ctx.Value(accessLogKey).(*accessLogEntry); ok {
		entry.setPrincipal(p.Name)
	}
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipalFromContext retrieves the principal from context
func GetPrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(models.Principal)
	return p, ok && !p.IsZero()
}

// WithSession adds the local session to the context
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSessionFromContext retrieves the local session from context
func GetSessionFromContext(ctx context.Context) *session.Session {
	if s, ok := ctx.Value(SessionKey).(*session.Session); ok {
		return s
	}
	return nil
}
