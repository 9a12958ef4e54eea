package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ampere/internal/batch"
	"ampere/internal/broker"
	"ampere/internal/checkpoint"
	"ampere/internal/sink"
	"ampere/internal/telemetry"
)

func payload(machine string, second int) []byte {
	return []byte(fmt.Sprintf(`{"ts":"2024-05-01T10:00:%02d.000Z","machine_id":"%s","phase":"A","watts":800.0,"volts":230.0,"amps":3.5}`, second%60, machine))
}

// fakeLog is an append-only partitioned log.
type fakeLog struct {
	mu      sync.Mutex
	records map[int][]telemetry.RawMessage
}

func newFakeLog() *fakeLog {
	return &fakeLog{records: make(map[int][]telemetry.RawMessage)}
}

func (l *fakeLog) append(partition int, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	offset := int64(len(l.records[partition]))
	l.records[partition] = append(l.records[partition], telemetry.RawMessage{
		Topic:     "telemetry.power",
		Partition: partition,
		Offset:    offset,
		Value:     value,
	})
}

func (l *fakeLog) partitions() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	parts := make([]int, 0, len(l.records))
	for p := range l.records {
		parts = append(parts, p)
	}
	sort.Ints(parts)
	return parts
}

func (l *fakeLog) from(partition int, offset int64) []telemetry.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := l.records[partition]
	if offset >= int64(len(recs)) {
		return nil
	}
	return append([]telemetry.RawMessage(nil), recs[offset:]...)
}

type fakeSession struct {
	ctx      context.Context
	cancel   context.CancelFunc
	parts    []int
	messages chan telemetry.RawMessage

	mu   sync.Mutex
	acks []batch.Watermarks
}

func (s *fakeSession) GenerationID() int32                   { return 1 }
func (s *fakeSession) Partitions() []int                     { return s.parts }
func (s *fakeSession) Messages() <-chan telemetry.RawMessage { return s.messages }
func (s *fakeSession) Done() <-chan struct{}                 { return s.ctx.Done() }

func (s *fakeSession) Ack(_ context.Context, offsets batch.Watermarks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, offsets.Clone())
	return nil
}

// fakeReader replays the log from the resumed offsets. With ignoreResume it
// redelivers everything from offset 0.
type fakeReader struct {
	log          *fakeLog
	ignoreResume bool

	mu      sync.Mutex
	starts  map[int]int64
	session *fakeSession
}

func (r *fakeReader) Validate(context.Context) error { return nil }
func (r *fakeReader) Close() error                   { return nil }

func (r *fakeReader) Run(ctx context.Context, resume broker.ResumeFunc, handle broker.SessionHandler) error {
	sctx, cancel := context.WithCancel(ctx)
	sess := &fakeSession{
		ctx:      sctx,
		cancel:   cancel,
		parts:    r.log.partitions(),
		messages: make(chan telemetry.RawMessage, 8),
	}

	r.mu.Lock()
	r.session = sess
	r.starts = make(map[int]int64)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range sess.parts {
		start := int64(0)
		if off, ok := resume(p); ok && !r.ignoreResume {
			start = off + 1
		}
		r.mu.Lock()
		r.starts[p] = start
		r.mu.Unlock()

		wg.Add(1)
		go func(p int, start int64) {
			defer wg.Done()
			for _, msg := range r.log.from(p, start) {
				select {
				case sess.messages <- msg:
				case <-sctx.Done():
					return
				}
			}
		}(p, start)
	}

	err := handle(ctx, sess)
	cancel()
	wg.Wait()
	return err
}

func (r *fakeReader) startOffsets() map[int]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]int64, len(r.starts))
	for p, o := range r.starts {
		out[p] = o
	}
	return out
}

func (r *fakeReader) acks() []batch.Watermarks {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]batch.Watermarks(nil), sess.acks...)
}

// fakeSink behaves like the bronze table: unique on (event_id, event_ts).
type fakeSink struct {
	mu         sync.Mutex
	rows       map[string]telemetry.Record
	failures   int
	alwaysFail bool
	writes     int
	calls      int
}

func newFakeSink() *fakeSink {
	return &fakeSink{rows: make(map[string]telemetry.Record)}
}

func rowKey(rec telemetry.Record) string {
	ts := "null"
	if rec.EventTS.Valid {
		ts = rec.EventTS.Time.UTC().Format(time.RFC3339Nano)
	}
	return rec.EventID + "|" + ts
}

func (s *fakeSink) Write(ctx context.Context, b batch.MicroBatch) (sink.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err := ctx.Err(); err != nil {
		return sink.Result{}, err
	}
	if s.alwaysFail || s.failures > 0 {
		if s.failures > 0 {
			s.failures--
		}
		return sink.Result{}, errors.New("connection reset by peer")
	}

	res := sink.Result{Epoch: b.Epoch, Watermarks: b.Watermarks}
	for _, rec := range b.Records {
		k := rowKey(rec)
		if _, ok := s.rows[k]; ok {
			res.Skipped++
			continue
		}
		s.rows[k] = rec
		res.Inserted++
	}
	s.writes++
	return res, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeSink) setAlwaysFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysFail = v
}

func (s *fakeSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// flakyStore fails the first saves.
type flakyStore struct {
	checkpoint.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("checkpoint volume unavailable")
	}
	s.mu.Unlock()
	return s.Store.Save(ctx, cp)
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []broker.Message
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte, headers ...broker.Header) (broker.Delivery, error) {
	d, err := p.PublishBatch(ctx, []broker.Message{{Topic: topic, Key: key, Value: value, Headers: headers}})
	if err != nil {
		return broker.Delivery{}, err
	}
	return d[0], nil
}

func (p *fakeProducer) PublishBatch(_ context.Context, msgs []broker.Message) ([]broker.Delivery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]broker.Delivery, len(msgs))
	for i, m := range msgs {
		p.msgs = append(p.msgs, m)
		out[i] = broker.Delivery{Topic: m.Topic, Key: m.Key, Bytes: len(m.Value), Time: time.Now()}
	}
	return out, nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) published() []broker.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]broker.Message(nil), p.msgs...)
}
