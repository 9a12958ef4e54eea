package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ampere/internal/batch"
	"ampere/internal/broker"
	"ampere/internal/checkpoint"
	"ampere/internal/logger"
	"ampere/internal/sink"
	apperrors "ampere/pkg/errors"
)

type Deps struct {
	Reader      broker.StreamReader
	Writer      sink.Writer
	Checkpoints *checkpoint.Manager
	// Quarantine is required only when Options.QuarantineTopic is set.
	Quarantine broker.Producer
	Logger     logger.Logger
}

// Stats are cumulative since Start.
type Stats struct {
	Messages    int64
	Partial     int64
	Invalid     int64
	Batches     int64
	Inserted    int64
	Skipped     int64
	Quarantined int64
	Abandoned   int64
	Epoch       int64
	Offsets     batch.Watermarks
}

type counters struct {
	messages    atomic.Int64
	partial     atomic.Int64
	invalid     atomic.Int64
	batches     atomic.Int64
	inserted    atomic.Int64
	skipped     atomic.Int64
	quarantined atomic.Int64
	abandoned   atomic.Int64
}

// Pipeline moves records from the stream reader into the sink, one
// micro-batch at a time, and advances the checkpoint after every durable
// write.
type Pipeline struct {
	deps Deps
	opts Options
	log  logger.Logger

	stats counters

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfiguration.WithDetail("message", "invalid pipeline options"))
	}
	if deps.Reader == nil || deps.Writer == nil || deps.Checkpoints == nil {
		return nil, apperrors.ErrConfiguration.WithDetail("message", "pipeline requires a reader, a writer and a checkpoint manager")
	}
	if opts.QuarantineTopic != "" && deps.Quarantine == nil {
		return nil, apperrors.ErrConfiguration.WithDetail("message", "quarantine topic set without a producer")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NopLogger()
	}

	return &Pipeline{
		deps: deps,
		opts: opts,
		log:  deps.Logger,
		done: make(chan struct{}),
	}, nil
}

// Start loads the checkpoint and starts consuming in the background.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pipeline already started")
	}

	if err := p.deps.Checkpoints.Load(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	p.log.InfowCtx(ctx, "Pipeline started",
		"topic", p.opts.Topic,
		"group_id", p.opts.GroupID,
		"checkpoint_state", p.deps.Checkpoints.State().String(),
		"checkpoint_epoch", p.deps.Checkpoints.Epoch(),
		"trigger_interval", p.opts.TriggerInterval,
		"max_batch_records", p.opts.MaxBatchRecords,
		"quarantine_topic", p.opts.QuarantineTopic,
	)

	go func() {
		defer close(p.done)
		err := p.deps.Reader.Run(runCtx, p.deps.Checkpoints.Resume, p.handleSession)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.logProgress(ctx)
		p.log.InfowCtx(ctx, "Pipeline stopped", "error", err)
	}()

	return nil
}

// Stop asks the pipeline to drain. It does not wait; use Wait.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until the reader returned and reports its error.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the pipeline stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) Stats() Stats {
	cp := p.deps.Checkpoints.Current()
	return Stats{
		Messages:    p.stats.messages.Load(),
		Partial:     p.stats.partial.Load(),
		Invalid:     p.stats.invalid.Load(),
		Batches:     p.stats.batches.Load(),
		Inserted:    p.stats.inserted.Load(),
		Skipped:     p.stats.skipped.Load(),
		Quarantined: p.stats.quarantined.Load(),
		Abandoned:   p.stats.abandoned.Load(),
		Epoch:       cp.Epoch,
		Offsets:     cp.Offsets,
	}
}

func (p *Pipeline) logProgress(ctx context.Context) {
	s := p.Stats()
	p.log.InfowCtx(ctx, "Ingest progress",
		"messages", s.Messages,
		"partial", s.Partial,
		"invalid", s.Invalid,
		"batches", s.Batches,
		"inserted", s.Inserted,
		"skipped", s.Skipped,
		"quarantined", s.Quarantined,
		"abandoned_batches", s.Abandoned,
		"checkpoint_epoch", s.Epoch,
		"checkpoint_offsets", s.Offsets.String(),
	)
}

// drainContext keeps ctx values but not its cancellation. It is cancelled
// timeout after stop closes, or by the returned cancel func.
func drainContext(ctx context.Context, stop <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-stop:
		case <-dctx.Done():
			return
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-dctx.Done():
		}
	}()
	return dctx, cancel
}
