package broker

import (
	"context"
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"

	"ampere/internal/batch"
	"ampere/internal/telemetry"
)

type kafkaSession struct {
	gen        *kafka.Generation
	topic      string
	partitions []int
	messages   chan telemetry.RawMessage
	ctx        context.Context
	cancel     context.CancelFunc
}

func newKafkaSession(parent context.Context, gen *kafka.Generation, topic string, queueCapacity int) *kafkaSession {
	assigned := gen.Assignments[topic]
	partitions := make([]int, 0, len(assigned))
	for _, a := range assigned {
		partitions = append(partitions, a.ID)
	}
	sort.Ints(partitions)

	ctx, cancel := context.WithCancel(parent)
	return &kafkaSession{
		gen:        gen,
		topic:      topic,
		partitions: partitions,
		messages:   make(chan telemetry.RawMessage, queueCapacity),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *kafkaSession) GenerationID() int32 {
	return s.gen.ID
}

func (s *kafkaSession) Partitions() []int {
	return s.partitions
}

func (s *kafkaSession) Messages() <-chan telemetry.RawMessage {
	return s.messages
}

func (s *kafkaSession) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *kafkaSession) Ack(_ context.Context, offsets batch.Watermarks) error {
	if len(offsets) == 0 {
		return nil
	}

	commit := make(map[int]int64, len(offsets))
	for p, o := range offsets {
		commit[p] = o + 1
	}

	if err := s.gen.CommitOffsets(map[string]map[int]int64{s.topic: commit}); err != nil {
		return fmt.Errorf("failed to commit group offsets: %w", err)
	}
	return nil
}

// deliver blocks until the queue accepts msg or the session ends.
func (s *kafkaSession) deliver(msg telemetry.RawMessage) bool {
	select {
	case s.messages <- msg:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *kafkaSession) queueLen() int {
	return len(s.messages)
}

func convertMessage(m kafka.Message) telemetry.RawMessage {
	var headers map[string][]byte
	if len(m.Headers) > 0 {
		headers = make(map[string][]byte, len(m.Headers))
		for _, h := range m.Headers {
			headers[h.Key] = h.Value
		}
	}
	return telemetry.RawMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Time:      m.Time,
	}
}
