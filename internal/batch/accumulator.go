package batch

import (
	"time"

	"ampere/internal/telemetry"
)

// Accumulator groups records into epoch-numbered micro-batches. It is owned
// by a single goroutine and is not safe for concurrent use.
type Accumulator struct {
	maxRecords int
	epoch      int64
	records    []telemetry.Record
	watermarks Watermarks
	ranges     map[int]OffsetRange
	openedAt   time.Time
}

// NewAccumulator opens epoch firstEpoch. maxRecords <= 0 disables the size trigger.
func NewAccumulator(maxRecords int, firstEpoch int64) *Accumulator {
	a := &Accumulator{maxRecords: maxRecords, epoch: firstEpoch}
	a.reset(time.Now())
	return a
}

func (a *Accumulator) reset(now time.Time) {
	capacity := a.maxRecords
	if capacity <= 0 || capacity > 4096 {
		capacity = 256
	}
	a.records = make([]telemetry.Record, 0, capacity)
	a.watermarks = make(Watermarks)
	a.ranges = make(map[int]OffsetRange)
	a.openedAt = now
}

// Add appends rec to the open batch and reports whether the size trigger fired.
func (a *Accumulator) Add(rec telemetry.Record) bool {
	if len(a.records) == 0 {
		a.openedAt = time.Now()
	}
	a.records = append(a.records, rec)
	a.watermarks.Observe(rec.Partition, rec.Offset)

	r, ok := a.ranges[rec.Partition]
	if !ok {
		r = OffsetRange{First: rec.Offset, Last: rec.Offset}
	} else {
		if rec.Offset < r.First {
			r.First = rec.Offset
		}
		if rec.Offset > r.Last {
			r.Last = rec.Offset
		}
	}
	a.ranges[rec.Partition] = r

	return a.Full()
}

func (a *Accumulator) Full() bool {
	return a.maxRecords > 0 && len(a.records) >= a.maxRecords
}

func (a *Accumulator) Len() int {
	return len(a.records)
}

// Epoch is the number the open batch will carry.
func (a *Accumulator) Epoch() int64 {
	return a.epoch
}

// SetEpoch renumbers the open batch. Only valid while it is empty.
func (a *Accumulator) SetEpoch(epoch int64) {
	if len(a.records) == 0 {
		a.epoch = epoch
	}
}

// Flush closes the open batch and opens the next epoch. An empty batch is
// not emitted and does not consume an epoch.
func (a *Accumulator) Flush(now time.Time) (MicroBatch, bool) {
	if len(a.records) == 0 {
		a.openedAt = now
		return MicroBatch{}, false
	}

	b := MicroBatch{
		Epoch:      a.epoch,
		Records:    a.records,
		Watermarks: a.watermarks,
		Ranges:     a.ranges,
		OpenedAt:   a.openedAt,
		ClosedAt:   now,
	}

	a.epoch++
	a.reset(now)
	return b, true
}
