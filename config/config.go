package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: when nil, credentials and todos are kept in memory.
	AccessProxy   AccessProxyConfig
	Session       SessionConfig
	Frontend      FrontendConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LoginRateLimit  int      // login attempts per minute per client IP
	CORSOrigins     []string // empty disables CORS handling
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AccessProxyConfig holds the settings used to trust bearer tokens minted by the
// upstream access-management proxy. The first five fields are mandatory.
type AccessProxyConfig struct {
	JWKSURL            string
	Issuer             string
	Audience           string
	UserNameClaim      string
	GroupsClaim        string
	ClockSkew          time.Duration
	JWKSCacheTTL       time.Duration
	JWKSFetchTimeout   time.Duration
	JWKSMinRefresh     time.Duration
	InsecureSkipVerify bool // local development only
}

// SessionConfig holds the local username/password session settings
type SessionConfig struct {
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
	CookieSecure    bool
	CredentialsFile string
}

// FrontendConfig controls how the single page application is served
type FrontendConfig struct {
	DevMode   bool
	DevURL    string
	StaticDir string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
	MetricsPort    int
}

// requiredVar pairs an environment variable with the field it populates.
type requiredVar struct {
	key   string
	value *string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			LoginRateLimit:  getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			CORSOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", true),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		AccessProxy: AccessProxyConfig{
			JWKSURL:            os.Getenv("PINGACCESS_JWKS_URL"),
			Issuer:             os.Getenv("PINGACCESS_JWT_ISSUER"),
			Audience:           os.Getenv("PINGACCESS_JWT_AUDIENCE"),
			UserNameClaim:      os.Getenv("PINGACCESS_JWT_USER_NAME_CLAIM"),
			GroupsClaim:        os.Getenv("PINGACCESS_JWT_GROUPS_CLAIM"),
			ClockSkew:          getEnvAsDuration("JWT_CLOCK_SKEW", 60*time.Second),
			JWKSCacheTTL:       getEnvAsDuration("JWKS_CACHE_TTL", 5*time.Minute),
			JWKSFetchTimeout:   getEnvAsDuration("JWKS_FETCH_TIMEOUT", 10*time.Second),
			JWKSMinRefresh:     getEnvAsDuration("JWKS_MIN_REFRESH_INTERVAL", 0),
			InsecureSkipVerify: getEnvAsBool("JWKS_INSECURE_SKIP_VERIFY", false),
		},
		Session: SessionConfig{
			IdleTimeout:     getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			JanitorInterval: getEnvAsDuration("SESSION_JANITOR_INTERVAL", time.Minute),
			CookieSecure:    getEnvAsBool("SESSION_COOKIE_SECURE", true),
			CredentialsFile: getEnv("CREDENTIALS_FILE", ""),
		},
		Frontend: FrontendConfig{
			DevMode:   getEnvAsBool("FRONTEND_DEV_MODE", false),
			DevURL:    getEnv("FRONTEND_DEV_URL", "https://localhost:1234"),
			StaticDir: getEnv("STATIC_DIR", "static"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set.
// A missing access proxy setting is always fatal: an empty audience or issuer
// must never silently disable the corresponding token check.
func (c *Config) Validate() error {
	required := []requiredVar{
		{"PINGACCESS_JWKS_URL", &c.AccessProxy.JWKSURL},
		{"PINGACCESS_JWT_ISSUER", &c.AccessProxy.Issuer},
		{"PINGACCESS_JWT_AUDIENCE", &c.AccessProxy.Audience},
		{"PINGACCESS_JWT_USER_NAME_CLAIM", &c.AccessProxy.UserNameClaim},
		{"PINGACCESS_JWT_GROUPS_CLAIM", &c.AccessProxy.GroupsClaim},
	}
	var missing []string
	for _, v := range required {
		if strings.TrimSpace(*v.value) == "" {
			missing = append(missing, v.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.AccessProxy.JWKSURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("PINGACCESS_JWKS_URL must be an absolute http(s) URL")
	}

	if c.AccessProxy.ClockSkew < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW must be non-negative")
	}
	if c.AccessProxy.JWKSFetchTimeout <= 0 {
		return fmt.Errorf("JWKS_FETCH_TIMEOUT must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.AccessProxy.InsecureSkipVerify && (!c.Frontend.DevMode || c.IsProduction()) {
		return fmt.Errorf("JWKS_INSECURE_SKIP_VERIFY is only allowed with FRONTEND_DEV_MODE outside production")
	}
	if c.Frontend.DevMode && c.IsProduction() {
		return fmt.Errorf("FRONTEND_DEV_MODE cannot be enabled in production")
	}

	if c.IsProduction() && c.Database == nil && c.Session.CredentialsFile == "" {
		return fmt.Errorf("production requires CREDENTIALS_FILE or DATABASE_URL; demo users are development only")
	}

	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set.
func loadDatabaseConfig() *DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if os.Getenv("DB_HOST") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", ""),
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8443)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8443
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
