package pipeline

import (
	"strconv"

	"ampere/internal/batch"
	"ampere/internal/broker"
	"ampere/internal/constants"
	"ampere/internal/telemetry"
)

const (
	HeaderSourceTopic     = "x-source-topic"
	HeaderSourcePartition = "x-source-partition"
	HeaderSourceOffset    = "x-source-offset"
	HeaderParseStatus     = "x-parse-status"
	HeaderEventID         = "x-event-id"
)

// split returns the batch to land and the records to publish to the
// quarantine topic. Watermarks always cover the whole batch.
func (p *Pipeline) split(b batch.MicroBatch) (batch.MicroBatch, []broker.Message) {
	if p.opts.QuarantineTopic == "" {
		return b, nil
	}

	divert := p.opts.QuarantineMode == constants.QuarantineModeDivert
	land := b
	if divert {
		land.Records = make([]telemetry.Record, 0, len(b.Records))
	}

	var out []broker.Message
	for _, rec := range b.Records {
		if rec.Status == telemetry.ParseOK {
			if divert {
				land.Records = append(land.Records, rec)
			}
			continue
		}
		out = append(out, p.quarantineMessage(rec))
	}

	return land, out
}

func (p *Pipeline) quarantineMessage(rec telemetry.Record) broker.Message {
	var key []byte
	if rec.MachineID.Valid {
		key = []byte(rec.MachineID.String)
	}
	return broker.Message{
		Topic: p.opts.QuarantineTopic,
		Key:   key,
		Value: rec.Raw,
		Headers: []broker.Header{
			{Key: HeaderSourceTopic, Value: []byte(p.opts.Topic)},
			{Key: HeaderSourcePartition, Value: []byte(strconv.Itoa(rec.Partition))},
			{Key: HeaderSourceOffset, Value: []byte(strconv.FormatInt(rec.Offset, 10))},
			{Key: HeaderParseStatus, Value: []byte(rec.Status.String())},
			{Key: HeaderEventID, Value: []byte(rec.EventID)},
		},
	}
}

func headerValue(m broker.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
