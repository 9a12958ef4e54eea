package batch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ampere/internal/telemetry"
)

// Watermarks maps a partition to the highest offset seen for it.
type Watermarks map[int]int64

// Observe raises the watermark for partition to offset if it is higher.
func (w Watermarks) Observe(partition int, offset int64) {
	if cur, ok := w[partition]; !ok || offset > cur {
		w[partition] = offset
	}
}

// Merge returns a new set holding the per-partition maximum of w and other.
func (w Watermarks) Merge(other Watermarks) Watermarks {
	out := make(Watermarks, len(w)+len(other))
	for p, o := range w {
		out[p] = o
	}
	for p, o := range other {
		out.Observe(p, o)
	}
	return out
}

func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	for p, o := range w {
		out[p] = o
	}
	return out
}

// Partitions returns the partitions in ascending order.
func (w Watermarks) Partitions() []int {
	parts := make([]int, 0, len(w))
	for p := range w {
		parts = append(parts, p)
	}
	sort.Ints(parts)
	return parts
}

func (w Watermarks) String() string {
	var b strings.Builder
	for i, p := range w.Partitions() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%d", p, w[p])
	}
	return b.String()
}

// OffsetRange is the span of offsets a batch holds for one partition.
type OffsetRange struct {
	First int64
	Last  int64
}

// MicroBatch is the unit of atomic sink write and checkpoint advance.
type MicroBatch struct {
	Epoch      int64
	Records    []telemetry.Record
	Watermarks Watermarks
	Ranges     map[int]OffsetRange
	OpenedAt   time.Time
	ClosedAt   time.Time
}

func (b MicroBatch) Len() int {
	return len(b.Records)
}

// RangeString renders offset ranges as "p0[10-25] p1[3-3]" for logs.
func (b MicroBatch) RangeString() string {
	parts := make([]int, 0, len(b.Ranges))
	for p := range b.Ranges {
		parts = append(parts, p)
	}
	sort.Ints(parts)

	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		r := b.Ranges[p]
		fmt.Fprintf(&sb, "p%d[%d-%d]", p, r.First, r.Last)
	}
	return sb.String()
}
