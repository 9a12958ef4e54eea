package sink

import (
	"context"
	"time"

	"ampere/internal/batch"
)

// Writer lands a micro-batch atomically. Replaying a batch that already
// landed inserts nothing.
type Writer interface {
	Write(ctx context.Context, b batch.MicroBatch) (Result, error)
}

type Result struct {
	Epoch      int64
	Inserted   int
	Skipped    int
	Watermarks batch.Watermarks
	Duration   time.Duration
}
