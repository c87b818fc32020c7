package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/upb/identity-gateway/app"
	"github.com/upb/identity-gateway/handlers"
	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/services/policy"
	"github.com/upb/identity-gateway/utils"
)

// SetupRoutes configures all application routes and middleware.
// Identity is resolved for every request before routing; public paths are
// decided by the policy engine.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimw.Recoverer)

	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeaderName},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(deps.AuthMiddleware.Authenticate)

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Local login
	r.With(loginRateLimit(cfg.Server.LoginRateLimit, deps.Logger)).Post("/login", deps.AuthHandler.HandleLogin)

	ops := deps.PolicyMiddleware
	r.With(ops.RequireOperation(policy.OpLogout)).Post("/logout", deps.AuthHandler.HandleLogout)
	r.With(ops.RequireOperation(policy.OpReadUser)).Get("/user", deps.UserHandler.HandleCurrentUser)

	r.Route("/todos", func(r chi.Router) {
		r.With(ops.RequireOperation(policy.OpReadOwnTodos)).Get("/", deps.TodoHandler.HandleListOwn)
		r.With(ops.RequireOperation(policy.OpCreateTodo)).Post("/", deps.TodoHandler.HandleCreate)
		r.With(ops.RequireOperation(policy.OpReadUserTodos)).Get("/{userName}", deps.TodoHandler.HandleListForUser)
	})

	// Single page application
	r.Get("/", deps.Frontend.ServeHTTP)
	r.Get("/index.{ext}", deps.Frontend.ServeHTTP)
	r.Get("/favicon.ico", deps.Frontend.ServeHTTP)
	r.Get("/__parcel_source_root/*", deps.Frontend.ServeHTTP)

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{
			Error:   "method_not_allowed",
			Message: "method not allowed",
		})
	})

	return r
}

// loginRateLimit limits login attempts per client IP per minute. Zero disables it.
func loginRateLimit(perMinute int, logger *zap.Logger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			handlers.HandleServiceError(w, services.ErrRateLimited.WithDetail("path", r.URL.Path), logger)
		}),
	)
}
