// Package config provides configuration structures and validation for the
// contract engine services. Values come from .env files under ./configs,
// overridden by environment variables, over built-in defaults.
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
	Redis       RedisConfig
	Vision      VisionConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Reminder    ReminderConfig
	Workflow    WorkflowConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env      string
	Name     string
	TimeZone string // Business time zone used to normalize "today" to midnight
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
	PublicBaseURL   string        // Base URL under which uploaded evidence is reachable
	MaxUploadBytes  int64         // Upper bound for a single evidence upload
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	EvidenceTopic     string // Slip submissions from the gateway to the processor
	NotificationTopic string // Outbound notices for the messaging service
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI                    string
	Database               string
	Timeout                time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	AuditCollection        string
	VerificationCollection string
	EvidenceBucket         string
	EvidenceChunkSizeBytes int32
}

// RedisConfig contains the idempotency store configuration
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration // How long a finished response is replayable
}

// VisionConfig contains the slip vision service client configuration
type VisionConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // Maximum number of retry attempts for outbox messages
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// ReminderConfig contains the due-date sweep configuration
type ReminderConfig struct {
	Interval      time.Duration
	PenaltyPerDay string // Currency units charged per overdue day
}

// WorkflowConfig contains action request workflow settings
type WorkflowConfig struct {
	MaxSlipAttempts int
}

// maxSlipAttempts matches the CHECK constraint on the stored attempt counters.
const maxSlipAttempts = 2

type number interface {
	~int | ~int32 | ~int64 | ~uint64
}

// validator collects every problem instead of stopping at the first one.
type validator struct {
	problems []string
}

func (v *validator) check(ok bool, msg string) {
	if !ok {
		v.problems = append(v.problems, msg)
	}
}

func (v *validator) required(value, key string) {
	v.check(strings.TrimSpace(value) != "", key+" is required")
}

func positive[T number](v *validator, value T, key string) {
	v.check(value > 0, key+" must be greater than 0")
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(v.problems, ", "))
}

func (c *Config) validate() error {
	v := &validator{}

	_, tzErr := time.LoadLocation(c.Application.TimeZone)
	v.check(tzErr == nil, "APP_TIMEZONE must be a valid IANA time zone")

	positive(v, c.Server.Port, "SERVER_PORT")
	positive(v, c.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	positive(v, c.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	positive(v, c.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	positive(v, c.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	positive(v, c.Server.MaxUploadBytes, "SERVER_MAX_UPLOAD_BYTES")
	v.required(c.Server.PublicBaseURL, "SERVER_PUBLIC_BASE_URL")

	v.required(c.Kafka.Brokers, "KAFKA_BROKERS")
	v.required(c.Kafka.EvidenceTopic, "KAFKA_EVIDENCE_TOPIC")
	v.required(c.Kafka.NotificationTopic, "KAFKA_NOTIFICATION_TOPIC")
	v.required(c.Kafka.ConsumerGroup, "KAFKA_CONSUMER_GROUP")
	positive(v, c.Kafka.MinBytes, "KAFKA_CONSUMER_MIN_BYTES")
	positive(v, c.Kafka.MaxBytes, "KAFKA_CONSUMER_MAX_BYTES")
	positive(v, c.Kafka.MaxWait, "KAFKA_CONSUMER_MAX_WAIT")
	v.check(c.Kafka.MinBytes <= c.Kafka.MaxBytes, "KAFKA_CONSUMER_MIN_BYTES must not exceed KAFKA_CONSUMER_MAX_BYTES")
	v.check(c.Kafka.DLQTopic != c.Kafka.EvidenceTopic, "KAFKA_DLQ_TOPIC must differ from KAFKA_EVIDENCE_TOPIC")

	v.required(c.Postgres.URL, "POSTGRES_URL")
	positive(v, c.Postgres.MaxConns, "POSTGRES_MAX_CONNS")
	positive(v, c.Postgres.MinConns, "POSTGRES_MIN_CONNS")
	v.check(c.Postgres.MinConns <= c.Postgres.MaxConns, "POSTGRES_MIN_CONNS must not exceed POSTGRES_MAX_CONNS")
	positive(v, c.Postgres.ConnMaxLifetime, "POSTGRES_MAX_CONN_LIFETIME")
	positive(v, c.Postgres.ConnMaxIdleTime, "POSTGRES_MAX_CONN_IDLE_TIME")
	v.required(c.Postgres.MigrationsPath, "POSTGRES_MIGRATIONS_PATH")

	v.required(c.MongoDB.URI, "MONGO_URI")
	v.required(c.MongoDB.Database, "MONGO_DATABASE")
	positive(v, c.MongoDB.Timeout, "MONGO_TIMEOUT")
	positive(v, c.MongoDB.MaxPoolSize, "MONGO_MAX_POOL_SIZE")
	positive(v, c.MongoDB.MinPoolSize, "MONGO_MIN_POOL_SIZE")
	positive(v, c.MongoDB.MaxConnIdleTime, "MONGO_MAX_CONN_IDLE_TIME")
	v.required(c.MongoDB.AuditCollection, "MONGO_AUDIT_COLLECTION")
	v.required(c.MongoDB.VerificationCollection, "MONGO_VERIFICATION_COLLECTION")
	v.required(c.MongoDB.EvidenceBucket, "MONGO_EVIDENCE_BUCKET")
	positive(v, c.MongoDB.EvidenceChunkSizeBytes, "MONGO_EVIDENCE_CHUNK_SIZE_BYTES")

	v.required(c.Redis.Addr, "REDIS_ADDR")
	positive(v, c.Redis.IdempotencyTTL, "REDIS_IDEMPOTENCY_TTL")

	v.required(c.Vision.BaseURL, "VISION_BASE_URL")
	positive(v, c.Vision.Timeout, "VISION_TIMEOUT")

	positive(v, c.Outbox.PollingInterval, "OUTBOX_POLLING_INTERVAL")
	positive(v, c.Outbox.BatchSize, "OUTBOX_BATCH_SIZE")
	positive(v, c.Outbox.MaxRetryAttempts, "OUTBOX_MAX_RETRY_ATTEMPTS")

	positive(v, c.WorkerPool.Size, "WORKER_POOL_SIZE")

	positive(v, c.Reminder.Interval, "REMINDER_INTERVAL")
	v.required(c.Reminder.PenaltyPerDay, "REMINDER_PENALTY_PER_DAY")

	positive(v, c.Workflow.MaxSlipAttempts, "WORKFLOW_MAX_SLIP_ATTEMPTS")
	v.check(c.Workflow.MaxSlipAttempts <= maxSlipAttempts, "WORKFLOW_MAX_SLIP_ATTEMPTS must not exceed 2")

	return v.err()
}

// Location resolves the configured business time zone, falling back to UTC.
func (c ApplicationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
