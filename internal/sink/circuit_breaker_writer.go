package sink

import (
	"context"
	"fmt"

	"ampere/internal/batch"
	"ampere/internal/config"
	"ampere/pkg/circuitbreaker"
	apperrors "ampere/pkg/errors"
)

const breakerName = "postgres-sink"

// CircuitBreakerWriter stops hammering the sink while it keeps failing. An
// open breaker surfaces as a retryable SINK_WRITE error.
type CircuitBreakerWriter struct {
	writer Writer
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerWriter(writer Writer, cfg config.CircuitBreakerConfig) *CircuitBreakerWriter {
	if !cfg.Enabled {
		return &CircuitBreakerWriter{writer: writer}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = circuitbreaker.RatioTrip(cfg.MinRequests, cfg.FailureRatio)
	}

	return &CircuitBreakerWriter{
		writer: writer,
		cb:     circuitbreaker.NewWrapper(cbConfig),
	}
}

func (w *CircuitBreakerWriter) Write(ctx context.Context, b batch.MicroBatch) (Result, error) {
	if w.cb == nil {
		return w.writer.Write(ctx, b)
	}

	out, err := w.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return w.writer.Write(ctx, b)
	})

	w.cb.RecordRequest(err == nil)

	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return Result{Epoch: b.Epoch}, apperrors.Wrap(err, apperrors.ErrSinkWrite.
				WithDetail("message", fmt.Sprintf("circuit breaker is open for %s", breakerName)).
				WithDetail("epoch", b.Epoch)).AsRetryable()
		}
		return Result{Epoch: b.Epoch}, err
	}

	result, ok := out.(Result)
	if !ok {
		return Result{Epoch: b.Epoch}, fmt.Errorf("sink writer returned invalid result type")
	}
	return result, nil
}

func (w *CircuitBreakerWriter) State() string {
	if w.cb == nil {
		return "disabled"
	}
	return w.cb.State().String()
}

func (w *CircuitBreakerWriter) IsOpen() bool {
	if w.cb == nil {
		return false
	}
	return w.cb.IsOpen()
}
