package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueAMQP   = "amqp"
)

// Mail transports.
const (
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
	TransportLog     = "log"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; driver-specific fields are checked in Load.
type Config struct {
	// Server
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	StoreDriver    string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"data/waitlist.db"`

	// Dispatch queue
	QueueBackend    string          `env:"QUEUE_BACKEND" envDefault:"memory"`
	AMQPURL         string          `env:"AMQP_URL"`
	AMQPQueueName   string          `env:"AMQP_QUEUE" envDefault:"email_dispatch"`
	QueueHighSize   int             `env:"QUEUE_HIGH_SIZE" envDefault:"1000"`
	QueueNormalSize int             `env:"QUEUE_NORMAL_SIZE" envDefault:"5000"`
	QueueLowSize    int             `env:"QUEUE_LOW_SIZE" envDefault:"2000"`
	Workers         int             `env:"DISPATCH_WORKERS" envDefault:"10"`
	MaxAttempts     int             `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`
	AttemptTimeout  time.Duration   `env:"ATTEMPT_TIMEOUT" envDefault:"60s"`
	RetryBackoff    []time.Duration `env:"RETRY_BACKOFF" envSeparator:"," envDefault:"5s,30s"`

	// Rate limiting: maximum emails per second per email kind
	MailRateLimit int `env:"MAIL_RATE_LIMIT" envDefault:"10"`

	// Mail transport
	MailTransport      string        `env:"MAIL_TRANSPORT" envDefault:"smtp"`
	MailFromAddress    string        `env:"MAIL_FROM_ADDRESS" envDefault:"hello@example.com"`
	MailFromName       string        `env:"MAIL_FROM_NAME" envDefault:"The Waitlist Team"`
	BrandName          string        `env:"BRAND_NAME" envDefault:"Waitlist"`
	SMTPHost           string        `env:"SMTP_HOST"`
	SMTPPort           int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername       string        `env:"SMTP_USERNAME"`
	SMTPPassword       string        `env:"SMTP_PASSWORD"`
	SMTPTLSPolicy      string        `env:"SMTP_TLS_POLICY" envDefault:"mandatory"`
	SMTPTimeout        time.Duration `env:"SMTP_TIMEOUT" envDefault:"15s"`
	MailWebhookURL     string        `env:"MAIL_WEBHOOK_URL"`
	MailWebhookTimeout time.Duration `env:"MAIL_WEBHOOK_TIMEOUT" envDefault:"10s"`

	// Admin authentication
	JWTSecret         string        `env:"JWT_SECRET"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	AdminSeedEmail    string        `env:"ADMIN_SEED_EMAIL"`
	AdminSeedPassword string        `env:"ADMIN_SEED_PASSWORD"`
	AdminSeedName     string        `env:"ADMIN_SEED_NAME" envDefault:"Administrator"`

	// HTTP boundary
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001,http://127.0.0.1:3000"`

	// Welcome email sweep; empty schedule disables it
	WelcomeSweepSchedule string `env:"WELCOME_SWEEP_SCHEDULE" envDefault:"@every 30m"`
	WelcomeSweepBatch    int    `env:"WELCOME_SWEEP_BATCH" envDefault:"100"`

	// Tracing; empty endpoint disables export
	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"waitlist"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.QueueBackend {
	case QueueMemory:
	case QueueAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required for the amqp queue backend")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	switch c.MailTransport {
	case TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp transport")
		}
	case TransportWebhook:
		if c.MailWebhookURL == "" {
			return fmt.Errorf("MAIL_WEBHOOK_URL is required for the webhook transport")
		}
	case TransportLog:
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.Workers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}
