package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Checkpoint     CheckpointConfig     `mapstructure:"checkpoint"`
	Quarantine     QuarantineConfig     `mapstructure:"quarantine"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	Generator      GeneratorConfig      `mapstructure:"generator"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN renders a lib/pq URL connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topic   string   `mapstructure:"topic"`
	// StartOffset applies only to partitions without a checkpoint.
	StartOffset   string        `mapstructure:"start_offset"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	MinBytes      int           `mapstructure:"min_bytes"`
	MaxBytes      int           `mapstructure:"max_bytes"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
	ClientID      string        `mapstructure:"client_id"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PipelineConfig struct {
	TriggerInterval  time.Duration `mapstructure:"trigger_interval"`
	MaxBatchRecords  int           `mapstructure:"max_batch_records"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type CheckpointConfig struct {
	Backend    string `mapstructure:"backend"`
	Location   string `mapstructure:"location"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	Collection string `mapstructure:"collection"`
	// RedisAOFWait bounds the WAITAOF after each Redis save. Zero relies on
	// appendfsync always.
	RedisAOFWait time.Duration `mapstructure:"redis_aof_wait"`
}

type QuarantineConfig struct {
	Topic string `mapstructure:"topic"`
	Mode  string `mapstructure:"mode"` // "copy" or "divert"
}

func (c QuarantineConfig) Enabled() bool {
	return c.Topic != ""
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// GeneratorConfig drives the synthetic telemetry producer.
type GeneratorConfig struct {
	Rate        float64  `mapstructure:"rate"`
	Machines    int      `mapstructure:"machines"`
	HotMachines []string `mapstructure:"hot_machines"`
	HotWeight   int      `mapstructure:"hot_weight"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
