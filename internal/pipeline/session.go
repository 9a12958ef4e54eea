package pipeline

import (
	"context"
	"time"

	"ampere/internal/batch"
	"ampere/internal/broker"
	"ampere/internal/telemetry"
	"ampere/pkg/logging"
	"ampere/pkg/metrics"
	"ampere/pkg/tracing"
)

// handleSession is the single accumulator loop of one group generation.
// Records still queued when the session ends are dropped; they are
// redelivered from the checkpoint.
func (p *Pipeline) handleSession(ctx context.Context, sess broker.Session) error {
	dctx, cancel := drainContext(ctx, sess.Done(), p.opts.DrainTimeout)
	defer cancel()

	acc := batch.NewAccumulator(p.opts.MaxBatchRecords, p.deps.Checkpoints.Epoch()+1)

	p.log.InfowCtx(ctx, "Session started",
		"generation_id", sess.GenerationID(),
		"partitions", sess.Partitions(),
		"next_epoch", acc.Epoch(),
	)

	trigger := time.NewTicker(p.opts.TriggerInterval)
	defer trigger.Stop()
	progress := time.NewTicker(p.opts.ProgressInterval)
	defer progress.Stop()

	for {
		// Stop accepting as soon as the session ends, even with messages queued.
		select {
		case <-sess.Done():
			return p.finish(ctx, dctx, sess, acc)
		default:
		}

		select {
		case <-sess.Done():
			return p.finish(ctx, dctx, sess, acc)

		case msg, ok := <-sess.Messages():
			if !ok {
				return p.finish(ctx, dctx, sess, acc)
			}
			if p.accept(ctx, acc, msg) {
				if err := p.flush(dctx, sess, acc); err != nil {
					return err
				}
			}

		case <-trigger.C:
			if err := p.flush(dctx, sess, acc); err != nil {
				return err
			}

		case <-progress.C:
			p.logProgress(ctx)
		}
	}
}

func (p *Pipeline) finish(ctx, dctx context.Context, sess broker.Session, acc *batch.Accumulator) error {
	err := p.flush(dctx, sess, acc)
	p.log.InfowCtx(ctx, "Session ended",
		"generation_id", sess.GenerationID(),
		"checkpoint_epoch", p.deps.Checkpoints.Epoch(),
		"dropped_queued", len(sess.Messages()),
	)
	return err
}

// accept decodes msg into the open batch and reports whether the size
// trigger fired.
func (p *Pipeline) accept(ctx context.Context, acc *batch.Accumulator, msg telemetry.RawMessage) bool {
	rec := telemetry.Decode(msg)

	if rec.Status != telemetry.ParseOK {
		lctx := ctx
		if traceID := tracing.TraceIDFromHeaders(ctx, msg.Headers); traceID != "" {
			lctx = logging.WithTraceID(ctx, traceID)
		}
		p.log.DebugwCtx(lctx, "Accepted malformed payload",
			"status", rec.Status.String(),
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event_id", rec.EventID,
		)
	}

	p.stats.messages.Add(1)
	switch rec.Status {
	case telemetry.ParsePartial:
		p.stats.partial.Add(1)
	case telemetry.ParseInvalid:
		p.stats.invalid.Add(1)
	}
	metrics.IncIngestMessage(rec.Status.String())

	return acc.Add(rec)
}

func epochContext(ctx context.Context, epoch int64) context.Context {
	return logging.WithEpoch(ctx, epoch)
}
