package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/observability"
	"github.com/upb/identity-gateway/services/policy"
	"github.com/upb/identity-gateway/utils"
)

// OperationAuthorizer evaluates the operation table
type OperationAuthorizer interface {
	Authorize(operation string, principal models.Principal) policy.Decision
}

// PolicyMiddleware enforces per-operation access rules
type PolicyMiddleware struct {
	authorizer OperationAuthorizer
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewPolicyMiddleware creates a new PolicyMiddleware
func NewPolicyMiddleware(authorizer OperationAuthorizer, logger *zap.Logger, metrics *observability.Metrics) *PolicyMiddleware {
	return &PolicyMiddleware{
		authorizer: authorizer,
		logger:     logger,
		metrics:    metrics,
	}
}

// RequireOperation rejects callers the operation's predicate does not admit.
// A missing principal is a 401; a failed predicate is a 403.
func (m *PolicyMiddleware) RequireOperation(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, _ := GetPrincipalFromContext(ctx)

			decision := m.authorizer.Authorize(operation, principal)
			m.metrics.AuthzDecision(operation, decision.Allowed)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.Warn("access denied",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("operation", operation),
				zap.String("user", principal.Name),
				zap.Strings("authorities", principal.Authorities),
				zap.String("reason", string(decision.Reason)))

			if decision.Reason == policy.ReasonUnauthenticated {
				_ = utils.WriteUnauthorized(w)
				return
			}
			_ = utils.WriteForbidden(w)
		})
	}
}
