package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, constants.DefaultTopic, cfg.Broker.Kafka.Topic)
	assert.Equal(t, constants.StartOffsetLatest, cfg.Broker.Kafka.StartOffset)
	assert.Equal(t, "energy", cfg.Database.Postgres.DBName)
	assert.Equal(t, constants.CheckpointBackendFile, cfg.Checkpoint.Backend)
	assert.Equal(t, constants.DefaultCheckpointLocation, cfg.Checkpoint.Location)
	assert.Equal(t, constants.DefaultTriggerInterval, cfg.Pipeline.TriggerInterval)
	assert.Equal(t, constants.DefaultSinkChunk, cfg.Pipeline.ChunkSize)
	assert.False(t, cfg.Quarantine.Enabled())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
broker:
  type: kafka
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    topic: telemetry.power
    group_id: bronze
    start_offset: EARLIEST
pipeline:
  trigger_interval: 2s
  max_batch_records: 100
  chunk_size: 50
checkpoint:
  backend: postgres
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "bronze", cfg.Broker.Kafka.GroupID)
	assert.Equal(t, constants.StartOffsetEarliest, cfg.Broker.Kafka.StartOffset)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.TriggerInterval)
	assert.Equal(t, 100, cfg.Pipeline.MaxBatchRecords)
	assert.Equal(t, 50, cfg.Pipeline.ChunkSize)
	assert.Equal(t, constants.CheckpointBackendPostgres, cfg.Checkpoint.Backend)
}

func TestLoadConfig_OriginalEnvNames(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP", "broker-a:9092, broker-b:9092")
	t.Setenv("TOPIC", "telemetry.other")
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_DB", "plant")
	t.Setenv("SPARK_CHECKPOINT", "/var/lib/ampere")
	t.Setenv("TRIGGER_INTERVAL", "750ms")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "telemetry.other", cfg.Broker.Kafka.Topic)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 6543, cfg.Database.Postgres.Port)
	assert.Equal(t, "plant", cfg.Database.Postgres.DBName)
	assert.Equal(t, "/var/lib/ampere", cfg.Checkpoint.Location)
	assert.Equal(t, 750*time.Millisecond, cfg.Pipeline.TriggerInterval)
}

func TestLoadConfig_StructuredEnvWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
broker:
  kafka:
    group_id: from-file
`)
	t.Setenv("BROKER_KAFKA_GROUP_ID", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Broker.Kafka.GroupID)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidStartOffset(t *testing.T) {
	t.Setenv("START_OFFSET", "middle")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kafka.start_offset")
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=require", cfg.DSN())
}
