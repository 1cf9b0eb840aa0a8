// Package config provides configuration structures and validation for the
// saga service. It handles environment-based configuration for all major
// components: the HTTP server, the journal and snapshot backends, the event
// stream, and the entity runtime.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Saga        SagaConfig
	Runtime     RuntimeConfig
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

// KafkaConfig contains the event stream configuration
type KafkaConfig struct {
	Brokers           string
	EventsTopic       string // Topic journal appends are published to
	NumPartitions     int    // Number of partitions for topic creation
	ReplicationFactor int    // Replication factor for topic creation
	WriteTimeout      time.Duration
}

// PostgresConfig contains the snapshot store configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of connections kept open
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains the journal store configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// SagaConfig contains coordinator timing configuration
type SagaConfig struct {
	PrepareTimeout time.Duration // Deadline for collecting all Ready votes
	RetryInterval  time.Duration // Retransmission period for outstanding commands
}

// RuntimeConfig contains entity runtime configuration
type RuntimeConfig struct {
	WorkerPoolSize int   // Maximum number of concurrent mailbox drains
	StashLimit     int   // Per-account bound on deferred StartTransaction commands
	SnapshotEvery  int64 // Snapshot an account every N persisted events (0 disables)
}

// validate performs comprehensive validation of all configuration values,
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
	if c.Kafka.EventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_EVENTS_TOPIC is required")
	}
	if c.Kafka.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "KAFKA_WRITE_TIMEOUT must be greater than 0")
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

	// Validate Saga config
	if c.Saga.PrepareTimeout <= 0 {
		validationErrors = append(validationErrors, "SAGA_PREPARE_TIMEOUT must be greater than 0")
	}
	if c.Saga.RetryInterval <= 0 {
		validationErrors = append(validationErrors, "SAGA_RETRY_INTERVAL must be greater than 0")
	}
	if c.Saga.RetryInterval > 0 && c.Saga.PrepareTimeout > 0 && c.Saga.RetryInterval >= c.Saga.PrepareTimeout {
		validationErrors = append(validationErrors, "SAGA_RETRY_INTERVAL must be less than SAGA_PREPARE_TIMEOUT")
	}

	// Validate Runtime config
	if c.Runtime.WorkerPoolSize <= 0 {
		validationErrors = append(validationErrors, "RUNTIME_WORKER_POOL_SIZE must be greater than 0")
	}
	if c.Runtime.StashLimit <= 0 {
		validationErrors = append(validationErrors, "RUNTIME_STASH_LIMIT must be greater than 0")
	}
	if c.Runtime.SnapshotEvery < 0 {
		validationErrors = append(validationErrors, "RUNTIME_SNAPSHOT_EVERY must not be negative")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
