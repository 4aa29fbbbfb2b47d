package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/workflow"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config aggregates runtime configuration for the service. It is loaded once
// at startup and treated as immutable afterwards.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME, default=issue-tracker"`
	Env                   string `env:"APP_ENV, default=development"`
	Host                  string `env:"APP_HOST, default=0.0.0.0"`
	Port                  string `env:"APP_PORT, default=5000"`
	Version               string `env:"APP_VERSION, default=dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS, default=30"`
}

// StoreConfig selects the ticket and user persistence backend.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER, default=memory"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS, default=10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS, default=2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS, default=true"`
	MigrationsDir  string `env:"POSTGRES_MIGRATIONS_DIR, default=migrations"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS, default=30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS, default=300"`
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI            string `env:"MONGODB_URI, default=mongodb://localhost:27017"`
	Database       string `env:"MONGODB_DATABASE, default=issue_tracker"`
	TimeoutSeconds int    `env:"MONGODB_TIMEOUT_SECONDS, default=10"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL, default=info"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string `env:"JWT_SECRET, default=dev-secret-change-this"`
	AccessTokenTTLMinutes   int    `env:"JWT_EXPIRES_MINUTES, default=480"`
	ResetTokenSecret        string `env:"RESET_TOKEN_SECRET"`
	PasswordResetTTLMinutes int    `env:"RESET_TOKEN_EXPIRES_MINUTES, default=60"`
	BcryptCost              int    `env:"AUTH_BCRYPT_COST, default=10"`
}

// WorkflowConfig tunes the status transition table.
type WorkflowConfig struct {
	ReopenClosed bool `env:"WORKFLOW_REOPEN_CLOSED, default=false"`
}

// Table derives the transition table from the workflow settings.
func (w WorkflowConfig) Table() workflow.Table {
	table := workflow.DefaultTable()
	if w.ReopenClosed {
		table = table.With(domain.TicketStatusClosed, domain.TicketStatusOpen)
	}
	return table
}

// NotificationConfig configures outbound mail.
type NotificationConfig struct {
	EmailFrom string `env:"NOTIFY_EMAIL_FROM, default=noreply@example.com"`
	SMTPHost  string `env:"SMTP_HOST"`
	SMTPPort  int    `env:"SMTP_PORT, default=587"`
	SMTPUser  string `env:"SMTP_USER"`
	SMTPPass  string `env:"SMTP_PASS"`
	AppURL    string `env:"APP_URL, default=http://localhost:5173"`
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith resolves configuration through the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	switch cfg.Store.Driver {
	case StoreMemory, StoreMongo:
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.Store.Driver)
	}

	if cfg.Auth.ResetTokenSecret == "" {
		cfg.Auth.ResetTokenSecret = cfg.Auth.JWTSecret
	}
	return &cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued access tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// PasswordResetTTL returns the lifetime of password reset tokens.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	return time.Duration(a.PasswordResetTTLMinutes) * time.Minute
}

// Timeout returns the per-operation Mongo timeout.
func (m MongoConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}
