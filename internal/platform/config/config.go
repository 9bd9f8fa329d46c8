package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the service.
type Config struct {
	Service    ServiceConfig
	Server     ServerConfig
	Database   DatabaseConfig
	NATS       NATSConfig
	Redis      RedisConfig
	Escalation EscalationConfig
	Rules      RulesConfig
	Tracing    TracingConfig
	RateLimit  RateLimitConfig
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `env:"SERVICE_NAME" envDefault:"be-proc-requisitions"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// ServerConfig controls the listeners.
type ServerConfig struct {
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8086"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"9086"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// DatabaseConfig configures the pgx pool.
type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        int           `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD"`
	Database    string        `env:"DB_NAME" envDefault:"procurement"`
	SSLMode     string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnTime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"30m"`
	HealthCheck time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// NATSConfig configures the notification publisher. An empty URL disables it.
type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"notifications.procurement"`
}

// RedisConfig configures the escalation lease. An empty URL disables the lease.
type RedisConfig struct {
	URL      string        `env:"REDIS_URL"`
	LeaseKey string        `env:"REDIS_ESCALATION_LEASE_KEY" envDefault:"procurement:escalation:lease"`
	LeaseTTL time.Duration `env:"REDIS_ESCALATION_LEASE_TTL" envDefault:"55s"`
}

// EscalationConfig holds approval deadlines and the scheduler cadence.
type EscalationConfig struct {
	Interval        time.Duration `env:"ESCALATION_INTERVAL" envDefault:"1m"`
	DefaultWindow   time.Duration `env:"ESCALATION_DEFAULT_WINDOW" envDefault:"24h"`
	ExpeditedWindow time.Duration `env:"ESCALATION_EXPEDITED_WINDOW" envDefault:"4h"`
	EmergencyWindow time.Duration `env:"ESCALATION_EMERGENCY_WINDOW" envDefault:"1h"`
	BatchSize       int           `env:"ESCALATION_BATCH_SIZE" envDefault:"200"`
	Enabled         bool          `env:"ESCALATION_ENABLED" envDefault:"true"`
}

// RulesConfig selects where workflow rules are loaded from.
type RulesConfig struct {
	// Source is "file" (YAML) or "database".
	Source string `env:"RULES_SOURCE" envDefault:"file"`
	// Path is a YAML rule file; empty uses the embedded default set.
	Path string `env:"RULES_PATH"`
}

// TracingConfig toggles the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled    bool   `env:"TRACING_ENABLED" envDefault:"false"`
	OutputFile string `env:"TRACING_OUTPUT_FILE"`
}

// RateLimitConfig bounds gRPC request throughput.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	Burst             int     `env:"RATE_LIMIT_BURST" envDefault:"100"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.Rules.Source != "file" && c.Rules.Source != "database" {
		return fmt.Errorf("RULES_SOURCE must be \"file\" or \"database\", got %q", c.Rules.Source)
	}
	if c.Escalation.DefaultWindow <= 0 {
		return fmt.Errorf("ESCALATION_DEFAULT_WINDOW must be positive")
	}
	if c.Escalation.ExpeditedWindow <= 0 || c.Escalation.ExpeditedWindow > c.Escalation.DefaultWindow {
		return fmt.Errorf("ESCALATION_EXPEDITED_WINDOW must be positive and not exceed the default window")
	}
	if c.Escalation.EmergencyWindow <= 0 || c.Escalation.EmergencyWindow > c.Escalation.ExpeditedWindow {
		return fmt.Errorf("ESCALATION_EMERGENCY_WINDOW must be positive and not exceed the expedited window")
	}
	if c.Escalation.BatchSize <= 0 {
		return fmt.Errorf("ESCALATION_BATCH_SIZE must be positive")
	}
	return nil
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
