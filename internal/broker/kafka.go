package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ampere/internal/config"
	"ampere/internal/constants"
	"ampere/internal/logger"
	"ampere/pkg/metrics"
	"ampere/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaProducer writes synchronously with acks from all in-sync replicas.
// Messages are partitioned by key.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte, headers ...Header) (Delivery, error) {
	deliveries, err := p.PublishBatch(ctx, []Message{{Topic: topic, Key: key, Value: value, Headers: headers}})
	if err != nil {
		return Delivery{}, err
	}
	return deliveries[0], nil
}

// PublishBatch writes msgs in one call. On error none of the deliveries
// should be assumed.
func (p *KafkaProducer) PublishBatch(ctx context.Context, msgs []Message) ([]Delivery, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	now := time.Now()
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		headers := make([]kafka.Header, 0, len(m.Headers)+2)
		for _, h := range m.Headers {
			headers = append(headers, kafka.Header{Key: h.Key, Value: h.Value})
		}
		headers = tracing.InjectTraceContext(ctx, headers)

		out[i] = kafka.Message{
			Topic:   m.Topic,
			Key:     m.Key,
			Value:   m.Value,
			Headers: headers,
			Time:    now,
		}
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return nil, fmt.Errorf("failed to write kafka messages: %w", err)
	}
	latency := time.Since(start)

	deliveries := make([]Delivery, len(msgs))
	for i, m := range msgs {
		deliveries[i] = Delivery{
			Topic:   m.Topic,
			Key:     m.Key,
			Bytes:   len(m.Value),
			Latency: latency,
			Time:    now,
		}
		metrics.IncKafkaMessagesWritten(constants.ServiceName, m.Topic)
		metrics.ObserveKafkaMessageSize(constants.ServiceName, m.Topic, "out", len(m.Value))
	}
	metrics.ObserveKafkaWriteDuration(constants.ServiceName, msgs[0].Topic, latency)

	return deliveries, nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
