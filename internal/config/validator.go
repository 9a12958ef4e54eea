package config

import (
	"errors"
	"fmt"
	"strings"

	"ampere/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errs = append(errs, err)
	}

	if err := validatePostgres(cfg.Database.Postgres); err != nil {
		errs = append(errs, err)
	}

	if err := validatePipeline(cfg.Pipeline); err != nil {
		errs = append(errs, err)
	}

	if err := validateCheckpoint(cfg.Checkpoint, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateQuarantine(cfg.Quarantine, cfg.Broker.Kafka); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %q (supported: kafka)", cfg.Type),
		}
	}
	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "topic is required",
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	switch cfg.StartOffset {
	case constants.StartOffsetEarliest, constants.StartOffsetLatest:
	default:
		return &ValidationError{
			Field:   "broker.kafka.start_offset",
			Message: fmt.Sprintf("invalid start offset policy: %q (valid: earliest, latest)", cfg.StartOffset),
		}
	}

	if cfg.QueueCapacity < 1 {
		return &ValidationError{
			Field:   "broker.kafka.queue_capacity",
			Message: "queue capacity must be positive",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.TriggerInterval <= 0 {
		return &ValidationError{
			Field:   "pipeline.trigger_interval",
			Message: "trigger interval must be positive",
		}
	}

	if cfg.MaxBatchRecords < 1 {
		return &ValidationError{
			Field:   "pipeline.max_batch_records",
			Message: "max batch records must be positive",
		}
	}

	if cfg.ChunkSize < 1 || cfg.ChunkSize > constants.MaxSinkChunk {
		return &ValidationError{
			Field:   "pipeline.chunk_size",
			Message: fmt.Sprintf("chunk size must be between 1 and %d, got %d", constants.MaxSinkChunk, cfg.ChunkSize),
		}
	}

	if cfg.DrainTimeout <= 0 {
		return &ValidationError{
			Field:   "pipeline.drain_timeout",
			Message: "drain timeout must be positive",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "pipeline.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "pipeline.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "pipeline.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateCheckpoint(cfg CheckpointConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case constants.CheckpointBackendFile:
		if cfg.Location == "" {
			return &ValidationError{
				Field:   "checkpoint.location",
				Message: "checkpoint location is required for the file backend",
			}
		}
	case constants.CheckpointBackendPostgres:
	case constants.CheckpointBackendRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required for the redis checkpoint backend",
			}
		}
		if db.Redis.Port < 1 || db.Redis.Port > 65535 {
			return &ValidationError{
				Field:   "database.redis.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", db.Redis.Port),
			}
		}
		if cfg.RedisAOFWait < 0 {
			return &ValidationError{
				Field:   "checkpoint.redis_aof_wait",
				Message: fmt.Sprintf("AOF wait cannot be negative, got %s", cfg.RedisAOFWait),
			}
		}
	case constants.CheckpointBackendMongoDB:
		if !strings.HasPrefix(db.MongoDB.URI, "mongodb://") && !strings.HasPrefix(db.MongoDB.URI, "mongodb+srv://") {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
			}
		}
		if db.MongoDB.Database == "" {
			return &ValidationError{
				Field:   "database.mongodb.database",
				Message: "MongoDB database name is required",
			}
		}
	default:
		return &ValidationError{
			Field:   "checkpoint.backend",
			Message: fmt.Sprintf("unknown checkpoint backend: %q (valid: file, postgres, redis, mongodb)", cfg.Backend),
		}
	}

	return nil
}

func validateQuarantine(cfg QuarantineConfig, kafka KafkaConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	if cfg.Topic == kafka.Topic {
		return &ValidationError{
			Field:   "quarantine.topic",
			Message: "quarantine topic must differ from the input topic",
		}
	}

	switch cfg.Mode {
	case constants.QuarantineModeCopy, constants.QuarantineModeDivert:
	default:
		return &ValidationError{
			Field:   "quarantine.mode",
			Message: fmt.Sprintf("invalid quarantine mode: %q (valid: copy, divert)", cfg.Mode),
		}
	}

	return nil
}
