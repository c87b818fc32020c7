package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/identity-gateway/bearer"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/handlers"
	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/observability"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/repositories/memory"
	"github.com/upb/identity-gateway/repositories/postgres"
	"github.com/upb/identity-gateway/services/policy"
	"github.com/upb/identity-gateway/services/session"
	"github.com/upb/identity-gateway/services/todos"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Optional: nil when credentials and todos are kept in memory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Credentials repositories.CredentialRepository
	Todos       repositories.TodoRepository

	// Bearer tokens
	KeySource     *bearer.KeySource
	Authenticator *bearer.Authenticator

	// Services
	Sessions *session.Manager
	Policy   *policy.Engine
	TodoSvc  *todos.Service

	// Middleware
	AuthMiddleware   *middleware.AuthMiddleware
	PolicyMiddleware *middleware.PolicyMiddleware

	// Handlers
	AuthHandler   *handlers.AuthHandler
	UserHandler   *handlers.UserHandler
	TodoHandler   *handlers.TodoHandler
	HealthHandler *handlers.HealthHandler
	Frontend      http.Handler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}

	if err := deps.initRepositories(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps.initBearer(cfg)

	if err := deps.initServices(cfg); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initHandlers(cfg); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories picks the credential and todo stores.
// A credentials file always wins for credentials; the database, when
// configured, holds todos and otherwise credentials too. Without either,
// the demo users are served from memory.
func (d *Dependencies) initRepositories(ctx context.Context, cfg *config.Config) error {
	if cfg.Database != nil {
		factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory

		if err := factory.GetDB().InitSchema(ctx); err != nil {
			d.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		repos := factory.NewRepositories()
		d.Credentials = repos.Credentials
		d.Todos = repos.Todos

		if cfg.IsDevelopment() && cfg.Session.CredentialsFile == "" {
			demo, err := memory.DemoCredentials(bcrypt.DefaultCost)
			if err != nil {
				d.Close()
				return err
			}
			seeded, err := factory.SeedCredentials(ctx, demo)
			if err != nil {
				d.Close()
				return fmt.Errorf("failed to seed credentials: %w", err)
			}
			if seeded {
				d.Logger.Warn("seeded demo credentials into empty database")
			}
		}
	} else {
		d.Todos = memory.NewTodoRepository()
	}

	switch {
	case cfg.Session.CredentialsFile != "":
		store, err := memory.LoadCredentialFile(cfg.Session.CredentialsFile)
		if err != nil {
			d.Close()
			return err
		}
		d.Credentials = store
		d.Logger.Info("loaded credentials file", zap.String("path", cfg.Session.CredentialsFile))
	case d.Credentials == nil:
		demo, err := memory.DemoCredentials(bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		store, err := memory.NewCredentialStore(demo)
		if err != nil {
			return err
		}
		d.Credentials = store
		d.Logger.Warn("using built-in demo credentials")
	}

	d.Logger.Info("repositories initialized", zap.Bool("database", d.RepoFactory != nil))
	return nil
}

// initBearer wires the JWKS key source, token validator and claims mapper
func (d *Dependencies) initBearer(cfg *config.Config) {
	ap := cfg.AccessProxy

	client := &http.Client{Timeout: ap.JWKSFetchTimeout}
	if ap.InsecureSkipVerify {
		d.Logger.Warn("JWKS TLS verification disabled")
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // dev mode only, enforced by config validation
		}
	}

	d.KeySource = bearer.NewKeySource(bearer.KeySourceConfig{
		URL:                ap.JWKSURL,
		CacheTTL:           ap.JWKSCacheTTL,
		FetchTimeout:       ap.JWKSFetchTimeout,
		MinRefreshInterval: ap.JWKSMinRefresh,
		HTTPClient:         client,
	}, d.Logger, d.Metrics)

	validator := bearer.NewValidator(bearer.ValidatorConfig{
		Issuer:    ap.Issuer,
		Audience:  ap.Audience,
		ClockSkew: ap.ClockSkew,
	}, d.KeySource)

	d.Authenticator = bearer.NewAuthenticator(validator, bearer.NewClaimsMapper(ap.UserNameClaim, ap.GroupsClaim))
	d.Logger.Info("bearer authentication initialized",
		zap.String("jwks_url", ap.JWKSURL),
		zap.String("issuer", ap.Issuer))
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	sessions, err := session.NewManager(d.Credentials, session.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		BcryptCost:  bcrypt.DefaultCost,
	}, d.Logger, d.Metrics)
	if err != nil {
		return err
	}
	d.Sessions = sessions
	d.Policy = policy.NewDefaultEngine()
	d.TodoSvc = todos.NewService(d.Todos, d.Logger)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Authenticator, d.Sessions, d.Policy, d.Logger, d.Metrics)
	d.PolicyMiddleware = middleware.NewPolicyMiddleware(d.Policy, d.Logger, d.Metrics)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) error {
	d.AuthHandler = handlers.NewAuthHandler(d.Sessions, handlers.CookieConfig{Secure: cfg.Session.CookieSecure}, d.Logger, d.Metrics)
	d.UserHandler = handlers.NewUserHandler(d.Logger)
	d.TodoHandler = handlers.NewTodoHandler(d.TodoSvc, d.Logger)

	checks := map[string]handlers.HealthChecker{}
	if d.RepoFactory != nil {
		checks["database"] = d.RepoFactory.GetDB()
	}
	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)

	frontend, err := handlers.NewFrontendHandler(handlers.FrontendConfig{
		DevMode:   cfg.Frontend.DevMode,
		DevURL:    cfg.Frontend.DevURL,
		StaticDir: cfg.Frontend.StaticDir,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.Frontend = frontend
	return nil
}

// Close releases the database pool, if any
func (d *Dependencies) Close() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Error("failed to close database", zap.Error(err))
	}
	d.RepoFactory = nil
}

// NewMetrics registers the gateway collectors on reg when metrics are enabled
func NewMetrics(cfg *config.Config, reg prometheus.Registerer) *observability.Metrics {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	return observability.NewMetrics(reg)
}
