// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding the SQL migration files.
	MigrationsPath string

	// TrustedProxies lists the CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies []string

	// CORSOrigins may read the public catalog API from another origin.
	CORSOrigins []string

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig

	// Session holds the inactivity monitor timings.
	Session SessionConfig

	Metrics MetricsConfig
	Catalog CatalogConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host     string
	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey signs the CSRF and remember-me cookies (32+ bytes in production).
	SecretKey string
}

// SessionConfig holds the browser session inactivity timings. The standard
// timeout applies to ordinary logins, the extended one to "remember me".
type SessionConfig struct {
	StandardTimeout time.Duration
	ExtendedTimeout time.Duration

	// WarningLead is how long before the forced logout the warning appears.
	WarningLead time.Duration

	// ActivityDebounce collapses bursts of activity into a single re-arm.
	ActivityDebounce time.Duration

	// ReconcileSchedule is the cron spec for sweeping monitors whose backing
	// session disappeared from Redis.
	ReconcileSchedule string

	// EndedReasonTTL is how long the reason a session ended is remembered so
	// the next request can explain it to the user.
	EndedReasonTTL time.Duration
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool

	// Token, when set, must be presented as a bearer token to scrape /metrics.
	Token string
}

// CatalogConfig controls the program catalog cache.
type CatalogConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or timings are invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),
		CORSOrigins: getEnvList("CORS_ORIGINS", nil),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "crescendo"),
			Password:        getEnv("DB_PASSWORD", "crescendo"),
			Name:            getEnv("DB_NAME", "crescendo"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey: getEnv("SECRET_KEY", ""),
		},

		Session: SessionConfig{
			StandardTimeout:   getEnvDuration("SESSION_STANDARD_TIMEOUT", 30*time.Minute),
			ExtendedTimeout:   getEnvDuration("SESSION_EXTENDED_TIMEOUT", 7*24*time.Hour),
			WarningLead:       getEnvDuration("SESSION_WARNING_LEAD", 5*time.Minute),
			ActivityDebounce:  getEnvDuration("SESSION_ACTIVITY_DEBOUNCE", time.Second),
			ReconcileSchedule: getEnv("SESSION_RECONCILE_SCHEDULE", "@every 1m"),
			EndedReasonTTL:    getEnvDuration("SESSION_ENDED_REASON_TTL", 10*time.Minute),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Token:   getEnv("METRICS_TOKEN", ""),
		},

		Catalog: CatalogConfig{
			CacheSize: getEnvInt("CATALOG_CACHE_SIZE", 256),
			CacheTTL:  getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		},
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}

	if err := cfg.Session.validate(); err != nil {
		return nil, err
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	return cfg, nil
}

// validate rejects timings the inactivity monitor cannot honor.
func (s SessionConfig) validate() error {
	if s.StandardTimeout <= 0 || s.ExtendedTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if s.WarningLead < 0 || s.WarningLead >= s.StandardTimeout {
		return fmt.Errorf("SESSION_WARNING_LEAD must be shorter than SESSION_STANDARD_TIMEOUT")
	}
	if s.ExtendedTimeout < s.StandardTimeout {
		return fmt.Errorf("SESSION_EXTENDED_TIMEOUT must not be shorter than SESSION_STANDARD_TIMEOUT")
	}
	if s.ActivityDebounce < 0 {
		return fmt.Errorf("SESSION_ACTIVITY_DEBOUNCE must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
