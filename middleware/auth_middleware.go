package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/bearer"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/observability"
	"github.com/upb/identity-gateway/services/policy"
	"github.com/upb/identity-gateway/services/session"
	"github.com/upb/identity-gateway/utils"
)

// Cookie and header names shared with the single page application
const (
	SessionCookieName = "SESSION"
	CSRFCookieName    = "XSRF-TOKEN"
	CSRFHeaderName    = "X-XSRF-TOKEN"
)

// TokenAuthenticator turns a bearer token into a principal
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, raw string) (models.Principal, error)
}

// SessionAuthenticator resolves session cookies and checks CSRF tokens
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, id string) (*session.Session, error)
	VerifyCSRF(s *session.Session, presented string) error
}

// PathPolicy evaluates the path table; a zero principal is anonymous
type PathPolicy interface {
	Decide(path string, principal models.Principal) policy.Decision
}

// AuthMiddleware resolves the caller's identity before any handler runs.
type AuthMiddleware struct {
	tokens   TokenAuthenticator
	sessions SessionAuthenticator
	policy   PathPolicy
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(tokens TokenAuthenticator, sessions SessionAuthenticator, paths PathPolicy, logger *zap.Logger, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		sessions: sessions,
		policy:   paths,
		logger:   logger,
		metrics:  metrics,
	}
}

// Authenticate lets public paths through untouched. Elsewhere it requires a
// bearer token or, when no bearer token is sent, a session cookie. A rejected
// bearer token is final and never falls back to the session. Session callers
// must also present the CSRF token on state-changing methods.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.Decide(r.URL.Path, models.Principal{}).Allowed {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		if token, present := extractBearerToken(r); present {
			principal, err := m.tokens.AuthenticateToken(ctx, token)
			if err != nil {
				m.logger.Warn("token validation failed",
					zap.String("request_id", requestID),
					zap.String("reason", bearer.Reason(err)),
					zap.Error(err))
				m.metrics.AuthAttempt(models.SourceBearer, observability.OutcomeFailure, bearer.Reason(err))
				_ = utils.WriteUnauthorized(w)
				return
			}
			m.metrics.AuthAttempt(models.SourceBearer, observability.OutcomeSuccess, "")
			m.admit(w, r.WithContext(WithPrincipal(ctx, principal)), next, principal)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			m.logger.Debug("no credentials presented",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			m.metrics.AuthAttempt("none", observability.OutcomeFailure, "missing")
			_ = utils.WriteUnauthorized(w)
			return
		}

		s, err := m.sessions.Authenticate(ctx, cookie.Value)
		if err != nil {
			m.logger.Warn("session rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			m.metrics.AuthAttempt(models.SourceSession, observability.OutcomeFailure, sessionReason(err))
			_ = utils.WriteUnauthorized(w)
			return
		}

		if requiresCSRF(r.Method) {
			if err := m.sessions.VerifyCSRF(s, r.Header.Get(CSRFHeaderName)); err != nil {
				m.logger.Warn("csrf check failed",
					zap.String("request_id", requestID),
					zap.String("user", s.Principal.Name),
					zap.String("method", r.Method),
					zap.Error(err))
				m.metrics.AuthAttempt(models.SourceSession, observability.OutcomeFailure, "csrf")
				_ = utils.WriteForbidden(w)
				return
			}
		}

		m.metrics.AuthAttempt(models.SourceSession, observability.OutcomeSuccess, "")
		ctx = WithSession(WithPrincipal(ctx, s.Principal), s)
		m.admit(w, r.WithContext(ctx), next, s.Principal)
	})
}

// admit re-evaluates the path table for the resolved principal.
func (m *AuthMiddleware) admit(w http.ResponseWriter, r *http.Request, next http.Handler, principal models.Principal) {
	decision := m.policy.Decide(r.URL.Path, principal)
	if decision.Allowed {
		next.ServeHTTP(w, r)
		return
	}

	m.logger.Warn("path denied",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("user", principal.Name),
		zap.String("reason", string(decision.Reason)))
	if decision.Reason == policy.ReasonUnauthenticated {
		_ = utils.WriteUnauthorized(w)
		return
	}
	_ = utils.WriteForbidden(w)
}

// extractBearerToken returns the token of an "Authorization: Bearer" header.
// present is true whenever the Bearer scheme is used, even with an empty token.
func extractBearerToken(r *http.Request) (token string, present bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	if len(parts) != 2 {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// requiresCSRF reports whether method changes server state
func requiresCSRF(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

func sessionReason(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return "expired"
	case errors.Is(err, session.ErrNoSession):
		return "unknown_session"
	default:
		return "unknown"
	}
}
