package telemetry

import (
	"database/sql"
	"time"
)

// RawMessage is one record as delivered by the transport. It is never
// mutated after the reader hands it over.
type RawMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Time      time.Time
}

type Phase string

const (
	PhaseMissing Phase = ""
	PhaseA       Phase = "A"
	PhaseB       Phase = "B"
	PhaseC       Phase = "C"
)

func ParsePhase(s string) Phase {
	switch Phase(s) {
	case PhaseA, PhaseB, PhaseC:
		return Phase(s)
	default:
		return PhaseMissing
	}
}

// Event is the decoded payload. A field with Valid == false is missing.
type Event struct {
	TS        sql.NullString
	MachineID sql.NullString
	Phase     Phase
	Watts     sql.NullFloat64
	Volts     sql.NullFloat64
	Amps      sql.NullFloat64
}

// Record is the sink-ready row derived from one RawMessage.
type Record struct {
	EventID   string
	EventTS   sql.NullTime
	Precision Precision
	MachineID sql.NullString
	Phase     Phase
	PowerKW   sql.NullFloat64
	VoltageV  sql.NullFloat64
	CurrentA  sql.NullFloat64
	TempC     sql.NullFloat64
	Status    ParseStatus
	Raw       []byte

	Partition int
	Offset    int64
}
