package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration.
//
// Values are read from environment variables with github.com/caarlos0/env.
// A .env file in the working directory is loaded first when present.
type Config struct {
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`

	// PlatformPort is the PORT variable set by hosting platforms. It wins
	// over SERVER_PORT when present.
	PlatformPort int `env:"PORT"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TLS             TLSConfig     `envPrefix:"TLS_"`
}

// TLSConfig enables serving HTTPS directly
type TLSConfig struct {
	Enabled  bool   `env:"ENABLED"   envDefault:"false"`
	CertFile string `env:"CERT_FILE" envDefault:"certs/cert.pem"`
	KeyFile  string `env:"KEY_FILE"  envDefault:"certs/key.pem"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string        `env:"DATABASE_URL"`
	Host             string        `env:"DB_HOST"              envDefault:"localhost"`
	Port             int           `env:"DB_PORT"              envDefault:"5432"`
	User             string        `env:"DB_USER"              envDefault:"calendar"`
	Password         string        `env:"DB_PASSWORD"          envDefault:"calendar"`
	Database         string        `env:"DB_NAME"              envDefault:"calendar"`
	SSLMode          string        `env:"DB_SSLMODE"           envDefault:"disable"`
	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate      bool          `env:"DB_AUTO_MIGRATE"      envDefault:"true"`
}

// RedisConfig holds the optional principal cache configuration.
// The cache is disabled when URL is empty.
type RedisConfig struct {
	URL      string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"PRINCIPAL_CACHE_TTL" envDefault:"1m"`
}

// Enabled reports whether a Redis URL was configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// defaultAllowedOrigin matches any local dev server
const defaultAllowedOrigin = "http://localhost:*"

// CORSConfig holds allowed browser origins. Credentials are always allowed
// so the refresh cookie is sent cross-origin. Defaults to defaultAllowedOrigin.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Sanitize trims origins and drops empty entries
func (c *CORSConfig) Sanitize() {
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{defaultAllowedOrigin}
	}
	c.AllowedOrigins = origins
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Sanitize()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Sanitize fills values that depend on more than one variable
func (c *Config) Sanitize() {
	if c.Server.PlatformPort != 0 {
		c.Server.Port = c.Server.PlatformPort
	}
	if c.Auth.DevDefaultSubject == "" {
		c.Auth.DevDefaultSubject = DefaultDevSubject
	}
	c.CORS.Sanitize()
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Auth validation
	if c.IsProduction() && c.Auth.DevBypass() {
		return fmt.Errorf("dev bypass authentication is not allowed in production")
	}
	if c.Auth.DevBypass() && c.Auth.DevDefaultSubject == "" {
		return fmt.Errorf("dev bypass requires a default subject")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
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

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
