package constants

import "time"

const ServiceName = "ingest-service"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 10 * time.Second
	KafkaFetchBackoff = time.Second
)

const (
	DefaultTopic          = "telemetry.power"
	DefaultGroupID        = "factory-power-bronze"
	DefaultQueueCapacity  = 1024
	DefaultQuarantineMode = QuarantineModeCopy
)

const (
	StartOffsetEarliest = "earliest"
	StartOffsetLatest   = "latest"
)

const (
	QuarantineModeCopy   = "copy"
	QuarantineModeDivert = "divert"
)

const (
	SinkSchema          = "bronze"
	SinkTable           = "raw_power"
	CheckpointTable     = "ingest_checkpoints"
	DefaultSinkChunk    = 500
	MaxSinkChunk        = 6000
	SinkColumnsPerRow   = 10
	DefaultMaxBatchRows = 5000
)

const (
	DefaultTriggerInterval  = 5 * time.Second
	DefaultDrainTimeout     = 30 * time.Second
	DefaultProgressInterval = time.Minute
)

const (
	CheckpointBackendFile     = "file"
	CheckpointBackendPostgres = "postgres"
	CheckpointBackendRedis    = "redis"
	CheckpointBackendMongoDB  = "mongodb"

	DefaultCheckpointLocation   = "./checkpoints/power_bronze"
	DefaultCheckpointKeyPrefix  = "ampere:checkpoint:"
	DefaultCheckpointCollection = "ingest_checkpoints"
	DefaultMongoDBName          = "ampere"
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
)
