package broker

import (
	"context"
	"time"

	"ampere/internal/batch"
	"ampere/internal/telemetry"
)

type Header struct {
	Key   string
	Value []byte
}

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []Header
}

// Delivery confirms that the broker acknowledged a message.
type Delivery struct {
	Topic   string
	Key     []byte
	Bytes   int
	Latency time.Duration
	Time    time.Time
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...Header) (Delivery, error)
	PublishBatch(ctx context.Context, msgs []Message) ([]Delivery, error)
	Close() error
}

// Session is one consumer-group generation: a fixed partition assignment
// feeding a single bounded queue.
type Session interface {
	GenerationID() int32
	Partitions() []int
	Messages() <-chan telemetry.RawMessage
	// Done is closed on shutdown or when the group rebalances.
	Done() <-chan struct{}
	// Ack commits offset+1 per partition to the consumer group.
	Ack(ctx context.Context, offsets batch.Watermarks) error
}

// ResumeFunc returns the last durable offset for a partition, if any.
type ResumeFunc func(partition int) (offset int64, ok bool)

// SessionHandler consumes a session until Done closes. It must finish its
// in-flight work before returning.
type SessionHandler func(ctx context.Context, sess Session) error

type StreamReader interface {
	Validate(ctx context.Context) error
	Run(ctx context.Context, resume ResumeFunc, handle SessionHandler) error
	Close() error
}
