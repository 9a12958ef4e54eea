package generator

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/broker"
	"ampere/internal/config"
	"ampere/internal/logger"
	"ampere/internal/telemetry"
)

type recordingProducer struct {
	mu   sync.Mutex
	keys []string
	vals [][]byte
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key, value []byte, _ ...broker.Header) (broker.Delivery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.vals = append(p.vals, value)
	return broker.Delivery{Topic: topic, Key: key, Bytes: len(value)}, nil
}

func (p *recordingProducer) PublishBatch(ctx context.Context, msgs []broker.Message) ([]broker.Delivery, error) {
	out := make([]broker.Delivery, 0, len(msgs))
	for _, m := range msgs {
		d, _ := p.Publish(ctx, m.Topic, m.Key, m.Value)
		out = append(out, d)
	}
	return out, nil
}

func (p *recordingProducer) Close() error { return nil }

func TestMachineIDs(t *testing.T) {
	ids := MachineIDs(20)
	require.Len(t, ids, 20)
	assert.Equal(t, "M001", ids[0])
	assert.Equal(t, "M020", ids[19])
}

func TestPicker_Weights(t *testing.T) {
	p, err := NewPicker(MachineIDs(20), []string{"M001", "M002", "M003"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 3*5+17, p.total)

	counts := make(map[string]int)
	for n := 0; n < p.total; n++ {
		counts[p.pick(n)]++
	}
	assert.Equal(t, 5, counts["M001"])
	assert.Equal(t, 5, counts["M003"])
	assert.Equal(t, 1, counts["M004"])
	assert.Equal(t, 1, counts["M020"])
}

func TestNewPicker_Empty(t *testing.T) {
	_, err := NewPicker(nil, nil, 5)
	assert.Error(t, err)
}

func TestNewEvent_ParsesAsComplete(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	now := time.Date(2025, 1, 1, 10, 0, 0, 123_000_000, time.UTC)

	for i := 0; i < 50; i++ {
		ev := NewEvent(r, "M007", now)
		assert.Equal(t, "2025-01-01T10:00:00.123Z", ev.TS)
		assert.Contains(t, phases, ev.Phase)
		assert.GreaterOrEqual(t, ev.Watts, 400.0)
		assert.LessOrEqual(t, ev.Watts, 1200.0)
		assert.GreaterOrEqual(t, ev.Volts, 200.0)
		assert.LessOrEqual(t, ev.Volts, 250.0)
		assert.GreaterOrEqual(t, ev.Amps, 1.0)
		assert.LessOrEqual(t, ev.Amps, 8.0)
	}
}

func TestGenerator_Run(t *testing.T) {
	producer := &recordingProducer{}
	g, err := New(producer, "telemetry.power", config.GeneratorConfig{
		Rate:        1000,
		Machines:    5,
		HotMachines: []string{"M001"},
		HotWeight:   5,
	}, logger.NopLogger())
	require.NoError(t, err)

	sent, err := g.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, sent)
	require.Len(t, producer.vals, 10)

	for i, v := range producer.vals {
		rec := telemetry.Decode(telemetry.RawMessage{Topic: "telemetry.power", Value: v})
		assert.Equal(t, telemetry.ParseOK, rec.Status)
		assert.Equal(t, telemetry.PrecisionMillisecond, rec.Precision)
		assert.Equal(t, producer.keys[i], rec.MachineID.String)
	}
}

func TestGenerator_StopsOnCancel(t *testing.T) {
	g, err := New(&recordingProducer{}, "telemetry.power", config.GeneratorConfig{Rate: 1}, logger.NopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, err := g.Run(ctx, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestNew_RejectsZeroRate(t *testing.T) {
	_, err := New(&recordingProducer{}, "t", config.GeneratorConfig{}, logger.NopLogger())
	assert.Error(t, err)
}
