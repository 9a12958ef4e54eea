package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"ampere/internal/config"
	"ampere/internal/constants"
	"ampere/internal/logger"
	apperrors "ampere/pkg/errors"
	"ampere/pkg/metrics"
)

// KafkaStreamReader joins a consumer group on one topic and reads every
// assigned partition from an explicit start offset. Group offsets are only
// written through Session.Ack.
type KafkaStreamReader struct {
	cfg    config.KafkaConfig
	logger logger.Logger
	dialer *kafka.Dialer

	mu     sync.Mutex
	group  *kafka.ConsumerGroup
	closed bool
}

func NewKafkaStreamReader(cfg config.KafkaConfig, log logger.Logger) (*KafkaStreamReader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.ErrConfiguration.WithDetail("message", "no kafka brokers configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = constants.ServiceName + "-" + uuid.NewString()[:8]
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = constants.DefaultQueueCapacity
	}

	return &KafkaStreamReader{
		cfg:    cfg,
		logger: log,
		dialer: &kafka.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   constants.KafkaDialTimeout,
			DualStack: true,
		},
	}, nil
}

// Validate fails when no broker is reachable or the topic does not exist.
func (r *KafkaStreamReader) Validate(ctx context.Context) error {
	var lastErr error
	for _, addr := range r.cfg.Brokers {
		conn, err := r.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}

		partitions, err := conn.ReadPartitions(r.cfg.Topic)
		conn.Close()
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrConfiguration.
				WithDetail("message", "failed to read topic partitions").
				WithDetail("topic", r.cfg.Topic))
		}
		if len(partitions) == 0 {
			return apperrors.ErrConfiguration.
				WithDetail("message", "topic has no partitions").
				WithDetail("topic", r.cfg.Topic)
		}

		r.logger.Infow("Kafka topic validated",
			"topic", r.cfg.Topic,
			"partitions", len(partitions),
			"broker", addr,
		)
		return nil
	}

	return apperrors.Wrap(lastErr, apperrors.ErrConfiguration.
		WithDetail("message", "no kafka broker reachable").
		WithDetail("brokers", r.cfg.Brokers))
}

// Run drives group generations until ctx ends. Each generation becomes a
// Session handed to handle; the next generation starts only after handle
// returned.
func (r *KafkaStreamReader) Run(ctx context.Context, resume ResumeFunc, handle SessionHandler) error {
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:          r.cfg.GroupID,
		Brokers:     r.cfg.Brokers,
		Dialer:      r.dialer,
		Topics:      []string{r.cfg.Topic},
		StartOffset: r.policyOffset(),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			r.logger.Warnw("Kafka consumer group", "detail", fmt.Sprintf(msg, args...))
		}),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrConfiguration.WithDetail("message", "failed to create consumer group"))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		group.Close()
		return nil
	}
	r.group = group
	r.mu.Unlock()
	defer r.closeGroup()

	r.logger.Infow("Joining consumer group",
		"topic", r.cfg.Topic,
		"group_id", r.cfg.GroupID,
		"brokers", r.cfg.Brokers,
		"client_id", r.cfg.ClientID,
	)

	for {
		gen, err := group.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			r.logger.Errorw("Failed to join consumer group generation", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(constants.KafkaFetchBackoff):
			}
			continue
		}

		if err := r.runGeneration(ctx, gen, resume, handle); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *KafkaStreamReader) runGeneration(ctx context.Context, gen *kafka.Generation, resume ResumeFunc, handle SessionHandler) error {
	sess := newKafkaSession(ctx, gen, r.cfg.Topic, r.cfg.QueueCapacity)

	r.logger.Infow("Partitions assigned",
		"generation_id", gen.ID,
		"member_id", gen.MemberID,
		"partitions", sess.Partitions(),
	)

	for _, p := range sess.Partitions() {
		partition := p
		start := r.startOffset(partition, resume)
		gen.Start(func(genCtx context.Context) {
			stop := context.AfterFunc(genCtx, sess.cancel)
			defer stop()
			r.fetch(sess, partition, start)
		})
	}

	handled := make(chan error, 1)
	gen.Start(func(genCtx context.Context) {
		stop := context.AfterFunc(genCtx, sess.cancel)
		defer stop()
		handled <- handle(ctx, sess)
	})

	err := <-handled
	sess.cancel()

	r.logger.Infow("Generation finished",
		"generation_id", gen.ID,
		"partitions", sess.Partitions(),
	)
	return err
}

// startOffset resumes after the checkpointed offset, or applies the policy
// for partitions the checkpoint does not know.
func (r *KafkaStreamReader) startOffset(partition int, resume ResumeFunc) int64 {
	if resume != nil {
		if off, ok := resume(partition); ok {
			return off + 1
		}
	}
	return r.policyOffset()
}

func (r *KafkaStreamReader) policyOffset() int64 {
	if r.cfg.StartOffset == constants.StartOffsetLatest {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func (r *KafkaStreamReader) fetch(sess *kafkaSession, partition int, start int64) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   r.cfg.Brokers,
		Topic:     r.cfg.Topic,
		Partition: partition,
		Dialer:    r.dialer,
		MinBytes:  r.cfg.MinBytes,
		MaxBytes:  r.cfg.MaxBytes,
		MaxWait:   r.cfg.MaxWait,
	})
	defer reader.Close()

	if err := reader.SetOffset(start); err != nil {
		r.logger.Errorw("Failed to set partition offset", "partition", partition, "offset", start, "error", err)
		return
	}

	r.logger.Infow("Started consuming",
		"topic", r.cfg.Topic,
		"partition", partition,
		"start_offset", start,
	)

	for {
		m, err := reader.FetchMessage(sess.ctx)
		if err != nil {
			if sess.ctx.Err() != nil {
				r.logger.Infow("Stopped consuming",
					"topic", r.cfg.Topic,
					"partition", partition,
					"reason", "session ended",
				)
				return
			}
			metrics.IncKafkaFetchError(constants.ServiceName, r.cfg.Topic)
			r.logger.Errorw("Error fetching kafka message",
				"error", err,
				"topic", r.cfg.Topic,
				"partition", partition,
			)
			select {
			case <-sess.ctx.Done():
				return
			case <-time.After(constants.KafkaFetchBackoff):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(constants.ServiceName, m.Topic)
		metrics.ObserveKafkaMessageSize(constants.ServiceName, m.Topic, "in", len(m.Value))
		if m.HighWaterMark > 0 {
			metrics.SetKafkaConsumerLag(constants.ServiceName, m.Topic, m.Partition, m.HighWaterMark-m.Offset-1)
		}

		if !sess.deliver(convertMessage(m)) {
			return
		}
		metrics.SetMessageQueueSize(constants.ServiceName, sess.queueLen())
	}
}

func (r *KafkaStreamReader) closeGroup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.group != nil {
		if err := r.group.Close(); err != nil {
			r.logger.Warnw("Failed to close consumer group", "error", err)
		}
		r.group = nil
	}
}

// Close leaves the consumer group. Run returns once the current session
// handler finished.
func (r *KafkaStreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.closeGroup()
	return nil
}
