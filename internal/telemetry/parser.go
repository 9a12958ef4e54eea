package telemetry

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
)

type ParseStatus int

const (
	// ParseOK: every field decoded.
	ParseOK ParseStatus = iota
	// ParsePartial: the payload is a JSON object but some fields are missing or wrong-typed.
	ParsePartial
	// ParseInvalid: the payload is not a JSON object.
	ParseInvalid
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParsePartial:
		return "partial"
	default:
		return "invalid"
	}
}

// ParsePayload decodes a telemetry payload. It never fails: unusable fields
// come back missing and the status says how much survived.
func ParsePayload(raw []byte) (Event, ParseStatus) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Event{}, ParseInvalid
	}

	var ev Event
	ev.TS = decodeString(fields["ts"])
	ev.MachineID = decodeString(fields["machine_id"])
	if phase := decodeString(fields["phase"]); phase.Valid {
		ev.Phase = ParsePhase(phase.String)
	}
	ev.Watts = decodeFloat(fields["watts"])
	ev.Volts = decodeFloat(fields["volts"])
	ev.Amps = decodeFloat(fields["amps"])

	status := ParseOK
	if !ev.TS.Valid || !ev.MachineID.Valid || ev.Phase == PhaseMissing ||
		!ev.Watts.Valid || !ev.Volts.Valid || !ev.Amps.Valid {
		status = ParsePartial
	}
	return ev, status
}

func decodeString(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || raw[0] != '"' {
		return sql.NullString{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return sql.NullString{}
	}
	// TEXT columns cannot hold NUL.
	if strings.IndexByte(s, 0) >= 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func decodeFloat(raw json.RawMessage) sql.NullFloat64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return sql.NullFloat64{}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// Enrich turns a RawMessage and its decoded Event into a sink record.
func Enrich(msg RawMessage, ev Event, status ParseStatus) Record {
	rec := Record{
		EventID:   eventID(msg.Value, ev),
		MachineID: ev.MachineID,
		Phase:     ev.Phase,
		VoltageV:  ev.Volts,
		CurrentA:  ev.Amps,
		Status:    status,
		Raw:       msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}

	if ev.TS.Valid {
		if ts := NormalizeTimestamp(ev.TS.String); ts.Valid() {
			rec.EventTS = sql.NullTime{Time: ts.Time, Valid: true}
			rec.Precision = ts.Precision
		} else if rec.Status == ParseOK {
			rec.Status = ParsePartial
		}
	}

	if ev.Watts.Valid {
		rec.PowerKW = sql.NullFloat64{Float64: ev.Watts.Float64 / 1000.0, Valid: true}
	}

	return rec
}

func eventID(payload []byte, ev Event) string {
	if !ev.MachineID.Valid || !ev.TS.Valid {
		return DeriveRawEventID(payload)
	}
	return DeriveEventID(ev.MachineID.String, ev.TS.String)
}

// Decode is ParsePayload followed by Enrich.
func Decode(msg RawMessage) Record {
	ev, status := ParsePayload(msg.Value)
	return Enrich(msg, ev, status)
}
