package telemetry

import (
	"strings"
	"time"
)

const (
	layoutMillis  = "2006-01-02T15:04:05.000"
	layoutSeconds = "2006-01-02T15:04:05"
)

type Precision int

const (
	PrecisionMissing Precision = iota
	PrecisionSecond
	PrecisionMillisecond
)

func (p Precision) String() string {
	switch p {
	case PrecisionMillisecond:
		return "millisecond"
	case PrecisionSecond:
		return "second"
	default:
		return "missing"
	}
}

// Timestamp is a canonical UTC instant. The zero value is missing.
type Timestamp struct {
	Time      time.Time
	Precision Precision
}

func (t Timestamp) Valid() bool {
	return t.Precision != PrecisionMissing
}

// NormalizeTimestamp parses YYYY-MM-DDTHH:MM:SS[.f]Z where the fraction has
// one to three digits (.5 reads as 500ms). Anything else is reported as
// missing.
func NormalizeTimestamp(s string) Timestamp {
	clean := strings.TrimSuffix(s, "Z")

	if ts, err := time.ParseInLocation(layoutMillis, clean, time.UTC); err == nil {
		return Timestamp{Time: ts.UTC(), Precision: PrecisionMillisecond}
	}

	// time.Parse accepts fractional seconds the layout does not mention, so
	// the fraction is split off and bounded here.
	if i := strings.IndexByte(clean, '.'); i >= 0 {
		ms, ok := shortFraction(clean[i+1:])
		if !ok {
			return Timestamp{}
		}
		ts, err := time.ParseInLocation(layoutSeconds, clean[:i], time.UTC)
		if err != nil {
			return Timestamp{}
		}
		return Timestamp{Time: ts.Add(time.Duration(ms) * time.Millisecond).UTC(), Precision: PrecisionMillisecond}
	}

	if ts, err := time.ParseInLocation(layoutSeconds, clean, time.UTC); err == nil {
		return Timestamp{Time: ts.UTC(), Precision: PrecisionSecond}
	}

	return Timestamp{}
}

// shortFraction reads one to three digits as milliseconds.
func shortFraction(frac string) (int, bool) {
	if len(frac) == 0 || len(frac) > 3 {
		return 0, false
	}
	ms := 0
	for i := 0; i < 3; i++ {
		ms *= 10
		if i >= len(frac) {
			continue
		}
		c := frac[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		ms += int(c - '0')
	}
	return ms, true
}
