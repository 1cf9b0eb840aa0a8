package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_HappyPath(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	tempConfigsSubDir := filepath.Join(tempDir, "configs")
	err = os.Mkdir(tempConfigsSubDir, 0755)
	require.NoError(t, err)

	testAppName := "TestApp"
	testPort := 9090
	testLogLevel := "debug"
	testKafkaBrokers := "kafka1:9092,kafka2:9092"

	envContent := fmt.Sprintf(
		"APP_NAME=%s\nSERVER_PORT=%d\nLOG_LEVEL=%s\nKAFKA_BROKERS=%s\n",
		testAppName, testPort, testLogLevel, testKafkaBrokers,
	)
	envFilePath := filepath.Join(tempConfigsSubDir, "test_happy.env")
	err = os.WriteFile(envFilePath, []byte(envContent), 0644)
	require.NoError(t, err)

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	defer func() {
		_ = os.Chdir(originalWD)
	}()

	err = os.Chdir(tempDir)
	require.NoError(t, err)

	cfg, err := LoadConfig("test_happy")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, testAppName, cfg.Application.Name)
	assert.Equal(t, testPort, cfg.Server.Port)
	assert.Equal(t, testLogLevel, cfg.Logging.Level)
	assert.Equal(t, testKafkaBrokers, cfg.Kafka.Brokers)

	assert.Equal(t, "development", cfg.Application.Env)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "account_events", cfg.Kafka.EventsTopic)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, 30*time.Second, cfg.Saga.PrepareTimeout)
	assert.Equal(t, 5*time.Second, cfg.Saga.RetryInterval)
	assert.Equal(t, 10, cfg.Runtime.WorkerPoolSize)
	assert.Equal(t, 64, cfg.Runtime.StashLimit)
	assert.Equal(t, int64(100), cfg.Runtime.SnapshotEvery)

	cfgWithName, err := LoadConfigWithName("configs/test_happy") // Viper will look for configs/test_happy.env
	require.NoError(t, err)
	require.NotNil(t, cfgWithName)
	assert.Equal(t, testAppName, cfgWithName.Application.Name)

	// Test LoadConfigWithNameAndType
	cfgWithNameAndType, err := LoadConfigWithNameAndType("configs/test_happy", "env")
	require.NoError(t, err)
	require.NotNil(t, cfgWithNameAndType)
	assert.Equal(t, testAppName, cfgWithNameAndType.Application.Name)
}

func defaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{
		Application: ApplicationConfig{Env: v.GetString("APP_ENV"), Name: v.GetString("APP_NAME")},
		Logging:     LoggingConfig{Level: v.GetString("LOG_LEVEL")},
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Kafka: KafkaConfig{
			Brokers:           v.GetString("KAFKA_BROKERS"),
			EventsTopic:       v.GetString("KAFKA_EVENTS_TOPIC"),
			NumPartitions:     v.GetInt("KAFKA_NUM_PARTITIONS"),
			ReplicationFactor: v.GetInt("KAFKA_REPLICATION_FACTOR"),
			WriteTimeout:      v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			URL:             v.GetString("POSTGRES_URL"),
			MaxConns:        int32(v.GetInt("POSTGRES_MAX_CONNS")),
			MinConns:        int32(v.GetInt("POSTGRES_MIN_CONNS")),
			ConnMaxLifetime: v.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("POSTGRES_MAX_CONN_IDLE_TIME"),
		},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGO_URI"),
			Database:        v.GetString("MONGO_DATABASE"),
			Timeout:         v.GetDuration("MONGO_TIMEOUT"),
			MaxPoolSize:     uint64(v.GetInt("MONGO_MAX_POOL_SIZE")),
			MinPoolSize:     uint64(v.GetInt("MONGO_MIN_POOL_SIZE")),
			MaxConnIdleTime: v.GetDuration("MONGO_MAX_CONN_IDLE_TIME"),
		},
		Saga: SagaConfig{
			PrepareTimeout: v.GetDuration("SAGA_PREPARE_TIMEOUT"),
			RetryInterval:  v.GetDuration("SAGA_RETRY_INTERVAL"),
		},
		Runtime: RuntimeConfig{
			WorkerPoolSize: v.GetInt("RUNTIME_WORKER_POOL_SIZE"),
			StashLimit:     v.GetInt("RUNTIME_STASH_LIMIT"),
			SnapshotEvery:  v.GetInt64("RUNTIME_SNAPSHOT_EVERY"),
		},
	}
}

func TestConfig_Validate_HappyPath(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.validate()
	assert.NoError(t, err, "Default config should be valid")
}

func TestConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "MissingEventsTopic",
			mutate:  func(c *Config) { c.Kafka.EventsTopic = "" },
			wantMsg: "KAFKA_EVENTS_TOPIC is required",
		},
		{
			name:    "ZeroPrepareTimeout",
			mutate:  func(c *Config) { c.Saga.PrepareTimeout = 0 },
			wantMsg: "SAGA_PREPARE_TIMEOUT must be greater than 0",
		},
		{
			name:    "RetryIntervalEqualToDeadline",
			mutate:  func(c *Config) { c.Saga.RetryInterval = c.Saga.PrepareTimeout },
			wantMsg: "SAGA_RETRY_INTERVAL must be less than SAGA_PREPARE_TIMEOUT",
		},
		{
			name:    "ZeroStashLimit",
			mutate:  func(c *Config) { c.Runtime.StashLimit = 0 },
			wantMsg: "RUNTIME_STASH_LIMIT must be greater than 0",
		},
		{
			name:    "NegativeSnapshotEvery",
			mutate:  func(c *Config) { c.Runtime.SnapshotEvery = -1 },
			wantMsg: "RUNTIME_SNAPSHOT_EVERY must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
