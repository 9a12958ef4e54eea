package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ampere/internal/batch"
	"ampere/internal/broker"
	"ampere/internal/constants"
	"ampere/internal/sink"
	apperrors "ampere/pkg/errors"
	"ampere/pkg/metrics"
	"ampere/pkg/retry"
	"ampere/pkg/tracing"
)

// commitState remembers which steps of a batch commit already succeeded so
// a retry resumes where the previous attempt failed.
type commitState struct {
	published bool
	written   bool
	result    sink.Result
}

// flush closes the open batch and commits it: quarantine publish, sink
// write, checkpoint save, then group ack. It only gives up when ctx ends,
// which leaves the checkpoint where it was.
func (p *Pipeline) flush(ctx context.Context, sess broker.Session, acc *batch.Accumulator) error {
	b, ok := acc.Flush(time.Now())
	if !ok {
		return nil
	}

	ctx = epochContext(ctx, b.Epoch)
	ctx, span := tracing.StartSpan(ctx, "pipeline.commit_batch",
		attribute.Int64("ingest.epoch", b.Epoch),
		attribute.Int("ingest.records", b.Len()),
		attribute.String("ingest.offsets", b.RangeString()),
	)
	defer span.End()

	land, quarantine := p.split(b)
	state := &commitState{}

	err := p.commitWithRetry(ctx, b, land, quarantine, state)
	if err != nil {
		tracing.RecordError(span, err)

		if ctx.Err() != nil {
			p.stats.abandoned.Add(1)
			metrics.IncBatchAbandoned()
			acc.SetEpoch(p.deps.Checkpoints.Epoch() + 1)
			p.log.ErrorwCtx(ctx, "Batch abandoned, records will be redelivered from the checkpoint",
				append(apperrors.Fields(err),
					"records", b.Len(),
					"offsets", b.RangeString(),
					"checkpoint_epoch", p.deps.Checkpoints.Epoch(),
				)...,
			)
			return nil
		}

		p.log.ErrorwCtx(ctx, "Batch commit failed permanently",
			append(apperrors.Fields(err), "records", b.Len(), "offsets", b.RangeString())...,
		)
		return err
	}

	p.stats.batches.Add(1)
	p.stats.inserted.Add(int64(state.result.Inserted))
	p.stats.skipped.Add(int64(state.result.Skipped))
	p.stats.quarantined.Add(int64(len(quarantine)))
	metrics.ObserveBatchCommitted(b.Len(), time.Since(b.ClosedAt))

	if err := sess.Ack(ctx, b.Watermarks); err != nil {
		p.log.WarnwCtx(ctx, "Failed to ack offsets to the consumer group",
			"error", err,
			"offsets", b.Watermarks.String(),
		)
	}

	p.log.DebugwCtx(ctx, "Batch committed",
		"records", b.Len(),
		"inserted", state.result.Inserted,
		"skipped", state.result.Skipped,
		"quarantined", len(quarantine),
		"offsets", b.RangeString(),
		"duration", time.Since(b.ClosedAt),
	)
	return nil
}

// commitWithRetry runs retry rounds until the commit succeeds, fails
// fatally or ctx ends. A batch is never skipped.
func (p *Pipeline) commitWithRetry(ctx context.Context, b, land batch.MicroBatch, quarantine []broker.Message, state *commitState) error {
	policy := p.opts.Retry

	for round := 1; ; round++ {
		err := retry.RetryWithCallback(ctx, policy, func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = apperrors.RecoverPanic(r)
				}
			}()
			return p.commitOnce(ctx, b, land, quarantine, state)
		}, func(attempt int, err error, nextDelay time.Duration) {
			metrics.IncRetryAttempt(constants.ServiceName, "batch_commit")
			p.log.WarnwCtx(ctx, "Retrying batch commit",
				append(apperrors.Fields(err),
					"round", round,
					"attempt", attempt,
					"max_attempts", policy.MaxAttempts,
					"next_delay", nextDelay,
					"offsets", b.RangeString(),
				)...,
			)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || isFatal(err) {
			return err
		}

		p.log.ErrorwCtx(ctx, "Batch commit retries exhausted, starting a new round",
			append(apperrors.Fields(err), "round", round, "offsets", b.RangeString())...,
		)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(policy.MaxInterval):
		}
	}
}

func isFatal(err error) bool {
	var fatal retry.FatalError
	return errors.As(err, &fatal) && fatal.IsFatal()
}

func (p *Pipeline) commitOnce(ctx context.Context, b, land batch.MicroBatch, quarantine []broker.Message, state *commitState) error {
	if !state.published && len(quarantine) > 0 {
		if _, err := p.deps.Quarantine.PublishBatch(ctx, quarantine); err != nil {
			return apperrors.Wrap(err, apperrors.ErrTransport.
				WithDetail("message", "failed to publish quarantined records").
				WithDetail("topic", p.opts.QuarantineTopic)).AsRetryable()
		}
		for _, m := range quarantine {
			metrics.IncQuarantine(p.opts.QuarantineTopic, p.opts.QuarantineMode, headerValue(m, HeaderParseStatus))
		}
		state.published = true
	}

	if !state.written {
		res, err := p.deps.Writer.Write(ctx, land)
		if err != nil {
			return err
		}
		metrics.ObserveSinkWrite(res.Inserted, res.Skipped, res.Duration)
		state.result = res
		state.written = true
	}

	cp, err := p.deps.Checkpoints.Commit(ctx, b.Watermarks)
	if err != nil {
		metrics.IncCheckpointCommit(p.opts.CheckpointBackend, "error")
		return err
	}
	metrics.IncCheckpointCommit(p.opts.CheckpointBackend, "ok")
	metrics.SetCheckpoint(p.opts.Topic, cp.Epoch, cp.Offsets)

	if cp.Epoch != b.Epoch {
		p.log.WarnwCtx(ctx, "Checkpoint epoch differs from batch epoch",
			"batch_epoch", b.Epoch,
			"checkpoint_epoch", cp.Epoch,
		)
	}
	return nil
}
