package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ampere/internal/constants"
)

// LoadConfig reads configFile (optional) and overlays the environment.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 10*time.Second)
	v.SetDefault("server.write_timeout_seconds", 10*time.Second)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "postgres")
	v.SetDefault("database.postgres.dbname", "energy")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 4)
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)

	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("broker.kafka.group_id", constants.DefaultGroupID)
	v.SetDefault("broker.kafka.topic", constants.DefaultTopic)
	v.SetDefault("broker.kafka.start_offset", constants.StartOffsetLatest)
	v.SetDefault("broker.kafka.queue_capacity", constants.DefaultQueueCapacity)
	v.SetDefault("broker.kafka.min_bytes", 1)
	v.SetDefault("broker.kafka.max_bytes", 10_000_000)
	v.SetDefault("broker.kafka.max_wait", time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("pipeline.trigger_interval", constants.DefaultTriggerInterval)
	v.SetDefault("pipeline.max_batch_records", constants.DefaultMaxBatchRows)
	v.SetDefault("pipeline.chunk_size", constants.DefaultSinkChunk)
	v.SetDefault("pipeline.drain_timeout", constants.DefaultDrainTimeout)
	v.SetDefault("pipeline.progress_interval", constants.DefaultProgressInterval)
	v.SetDefault("pipeline.retry.max_attempts", 5)
	v.SetDefault("pipeline.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("pipeline.retry.max_interval", 30*time.Second)
	v.SetDefault("pipeline.retry.multiplier", 2.0)

	v.SetDefault("checkpoint.backend", constants.CheckpointBackendFile)
	v.SetDefault("checkpoint.location", constants.DefaultCheckpointLocation)
	v.SetDefault("checkpoint.key_prefix", constants.DefaultCheckpointKeyPrefix)
	v.SetDefault("checkpoint.collection", constants.DefaultCheckpointCollection)

	v.SetDefault("quarantine.mode", constants.DefaultQuarantineMode)

	v.SetDefault("tracing.service_name", constants.ServiceName)

	v.SetDefault("generator.rate", 5.0)
	v.SetDefault("generator.machines", 20)
	v.SetDefault("generator.hot_machines", []string{"M001", "M002", "M003"})
	v.SetDefault("generator.hot_weight", 5)
}

// bindEnvVariables binds the structured names first and the short names used
// by the deployment scripts as aliases.
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID", "GROUP")
	v.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC", "TOPIC")
	v.BindEnv("broker.kafka.start_offset", "BROKER_KAFKA_START_OFFSET", "START_OFFSET")
	v.BindEnv("broker.kafka.queue_capacity", "BROKER_KAFKA_QUEUE_CAPACITY")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST", "PG_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT", "PG_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER", "PG_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD", "PG_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME", "PG_DB")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")
	v.BindEnv("database.run_migrations", "DATABASE_RUN_MIGRATIONS")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("pipeline.trigger_interval", "PIPELINE_TRIGGER_INTERVAL", "TRIGGER_INTERVAL")
	v.BindEnv("pipeline.max_batch_records", "PIPELINE_MAX_BATCH_RECORDS")
	v.BindEnv("pipeline.chunk_size", "PIPELINE_CHUNK_SIZE")
	v.BindEnv("pipeline.drain_timeout", "PIPELINE_DRAIN_TIMEOUT")

	v.BindEnv("checkpoint.backend", "CHECKPOINT_BACKEND")
	v.BindEnv("checkpoint.location", "CHECKPOINT_LOCATION", "SPARK_CHECKPOINT")
	v.BindEnv("checkpoint.redis_aof_wait", "CHECKPOINT_REDIS_AOF_WAIT")

	v.BindEnv("quarantine.topic", "QUARANTINE_TOPIC")
	v.BindEnv("quarantine.mode", "QUARANTINE_MODE")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")

	v.BindEnv("generator.rate", "GENERATOR_RATE", "RATE")
}

// applyEnvOverrides handles values viper cannot split on its own.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	brokersEnv := v.GetString("BROKER_KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = v.GetString("KAFKA_BOOTSTRAP")
	}
	if brokersEnv != "" {
		brokers := splitList(brokersEnv)
		if len(brokers) > 0 {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if len(cfg.Broker.Kafka.Brokers) == 1 && strings.Contains(cfg.Broker.Kafka.Brokers[0], ",") {
		cfg.Broker.Kafka.Brokers = splitList(cfg.Broker.Kafka.Brokers[0])
	}

	cfg.Broker.Kafka.StartOffset = strings.ToLower(strings.TrimSpace(cfg.Broker.Kafka.StartOffset))
	cfg.Checkpoint.Backend = strings.ToLower(strings.TrimSpace(cfg.Checkpoint.Backend))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
