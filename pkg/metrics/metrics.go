package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of messages decoded by the ingest pipeline, by parse status (count)",
		},
		[]string{"status"},
	)

	IngestBatchRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_records",
			Help:    "Number of records per committed micro-batch (count)",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	IngestBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_commit_duration_ms",
			Help:    "Duration from batch close to durable checkpoint in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	IngestBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total number of micro-batches by outcome (count)",
		},
		[]string{"status"},
	)

	SinkRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_rows_total",
			Help: "Total number of rows sent to the sink, inserted or skipped as duplicates (count)",
		},
		[]string{"result"},
	)

	SinkWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sink_write_duration_ms",
			Help:    "Duration of one sink transaction in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	CheckpointCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_commits_total",
			Help: "Total number of checkpoint saves by outcome (count)",
		},
		[]string{"backend", "status"},
	)

	CheckpointEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkpoint_epoch",
			Help: "Epoch of the last durable checkpoint (epoch)",
		},
	)

	CheckpointOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkpoint_offset",
			Help: "Highest durable offset per partition (offset)",
		},
		[]string{"topic", "partition"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	QuarantineMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_messages_total",
			Help: "Total number of records published to the quarantine topic (count)",
		},
		[]string{"topic", "mode", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between high water mark and last fetched offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_fetch_errors_total",
			Help: "Total number of transient Kafka fetch errors (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current size of the fetch queue feeding the accumulator (count)",
		},
		[]string{"service"},
	)
)

var registerOnce sync.Once

// RegisterIngestMetrics registers every collector with the default registry.
// Calling it more than once is a no-op.
func RegisterIngestMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IngestMessagesTotal)
		prometheus.MustRegister(IngestBatchRecords)
		prometheus.MustRegister(IngestBatchDuration)
		prometheus.MustRegister(IngestBatchesTotal)
		prometheus.MustRegister(SinkRowsTotal)
		prometheus.MustRegister(SinkWriteDuration)
		prometheus.MustRegister(CheckpointCommitsTotal)
		prometheus.MustRegister(CheckpointEpoch)
		prometheus.MustRegister(CheckpointOffset)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(QuarantineMessagesTotal)
		registerBrokerMetrics()
		registerCircuitBreakerMetrics()
	})
}

func registerBrokerMetrics() {
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaFetchErrorsTotal)
	prometheus.MustRegister(KafkaWriteDuration)
	prometheus.MustRegister(MessageQueueSize)
}

func registerCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func IncIngestMessage(status string) {
	IngestMessagesTotal.WithLabelValues(status).Inc()
}

func ObserveBatchCommitted(records int, duration time.Duration) {
	IngestBatchRecords.Observe(float64(records))
	IngestBatchDuration.WithLabelValues("committed").Observe(float64(duration.Milliseconds()))
	IngestBatchesTotal.WithLabelValues("committed").Inc()
}

func IncBatchAbandoned() {
	IngestBatchesTotal.WithLabelValues("abandoned").Inc()
}

func ObserveSinkWrite(inserted, skipped int, duration time.Duration) {
	SinkRowsTotal.WithLabelValues("inserted").Add(float64(inserted))
	SinkRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	SinkWriteDuration.Observe(float64(duration.Milliseconds()))
}

func IncCheckpointCommit(backend, status string) {
	CheckpointCommitsTotal.WithLabelValues(backend, status).Inc()
}

func SetCheckpoint(topic string, epoch int64, offsets map[int]int64) {
	CheckpointEpoch.Set(float64(epoch))
	for p, o := range offsets {
		CheckpointOffset.WithLabelValues(topic, strconv.Itoa(p)).Set(float64(o))
	}
}

func IncRetryAttempt(service, operation string) {
	RetryAttemptsTotal.WithLabelValues(service, operation).Inc()
}

func IncQuarantine(topic, mode, reason string) {
	QuarantineMessagesTotal.WithLabelValues(topic, mode, reason).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, strconv.Itoa(partition)).Set(float64(lag))
}

func IncKafkaFetchError(service, topic string) {
	KafkaFetchErrorsTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func SetMessageQueueSize(service string, size int) {
	MessageQueueSize.WithLabelValues(service).Set(float64(size))
}
