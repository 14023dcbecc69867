// Package config provides configuration structures and validation for the payment services.
// It covers the HTTP server, both databases, Kafka topics, the payment processor
// credentials and the commercial parameters used when pricing a booking payment.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Stripe      StripeConfig
	Payment     PaymentConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers                 string
	PaymentEventsTopic      string // Lifecycle events published from the outbox
	BookingCompletionsTopic string // Service completion events that trigger capture
	NumPartitions           int
	ReplicationFactor       int
	ConsumerGroup           string
	MinBytes                int
	MaxBytes                int
	MaxWait                 time.Duration
	StartOffset             int64
	MaxDeliveryAttempts     int           // Handler attempts per message before it is parked on the DLQ
	RetryBackoff            time.Duration // First delay between attempts, doubled up to MaxRetryBackoff
	MaxRetryBackoff         time.Duration
	DLQTopic                string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// StripeConfig contains payment processor credentials
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration // Maximum accepted age of a signed webhook
}

// PaymentConfig contains the commercial parameters applied to booking payments.
// Amounts are in minor currency units.
type PaymentConfig struct {
	CommissionPercent       float64
	MinAmount               int64
	MaxAmount               int64
	DefaultCurrency         string
	DedupCapacity           int
	ProcessedEventRetention time.Duration
}

// validate performs validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.PaymentEventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYMENT_EVENTS_TOPIC is required")
	}
	if c.Kafka.BookingCompletionsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_BOOKING_COMPLETIONS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.MaxDeliveryAttempts <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Kafka.RetryBackoff <= 0 || c.Kafka.MaxRetryBackoff < c.Kafka.RetryBackoff {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_RETRY_BACKOFF must be greater than 0 and not above KAFKA_CONSUMER_MAX_RETRY_BACKOFF")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Stripe config
	if c.Stripe.SecretKey == "" {
		validationErrors = append(validationErrors, "STRIPE_SECRET_KEY is required")
	}
	if c.Stripe.WebhookSecret == "" {
		validationErrors = append(validationErrors, "STRIPE_WEBHOOK_SECRET is required")
	}
	if c.Stripe.WebhookTolerance <= 0 {
		validationErrors = append(validationErrors, "STRIPE_WEBHOOK_TOLERANCE must be greater than 0")
	}

	// Validate Payment config
	if c.Payment.CommissionPercent < 0 || c.Payment.CommissionPercent > 100 {
		validationErrors = append(validationErrors, "PAYMENT_COMMISSION_PERCENT must be between 0 and 100")
	}
	if c.Payment.MinAmount <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_MIN_AMOUNT must be greater than 0")
	}
	if c.Payment.MaxAmount < c.Payment.MinAmount {
		validationErrors = append(validationErrors, "PAYMENT_MAX_AMOUNT must not be lower than PAYMENT_MIN_AMOUNT")
	}
	if len(c.Payment.DefaultCurrency) != 3 {
		validationErrors = append(validationErrors, "PAYMENT_DEFAULT_CURRENCY must be a 3-letter code")
	}
	if c.Payment.DedupCapacity <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_DEDUP_CAPACITY must be greater than 0")
	}
	if c.Payment.ProcessedEventRetention <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_PROCESSED_EVENT_RETENTION must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
