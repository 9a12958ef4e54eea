// Package generator emits synthetic power telemetry in the inbound wire
// format, for local runs and load checks.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"ampere/internal/broker"
	"ampere/internal/config"
	"ampere/internal/logger"
)

// TimestampLayout matches what the ingest side parses with millisecond
// precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var phases = []string{"A", "B", "C"}

// Event is one synthetic reading. Field names follow the inbound payload.
type Event struct {
	TS        string  `json:"ts"`
	MachineID string  `json:"machine_id"`
	Phase     string  `json:"phase"`
	Watts     float64 `json:"watts"`
	Volts     float64 `json:"volts"`
	Amps      float64 `json:"amps"`
}

// Picker draws machine ids with per-machine weights.
type Picker struct {
	machines   []string
	cumulative []int
	total      int
}

func MachineIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("M%03d", i+1)
	}
	return ids
}

func NewPicker(machines []string, hot []string, hotWeight int) (*Picker, error) {
	if len(machines) == 0 {
		return nil, fmt.Errorf("at least one machine is required")
	}
	if hotWeight < 1 {
		hotWeight = 1
	}

	hotSet := make(map[string]struct{}, len(hot))
	for _, m := range hot {
		hotSet[m] = struct{}{}
	}

	p := &Picker{
		machines:   machines,
		cumulative: make([]int, len(machines)),
	}
	for i, m := range machines {
		w := 1
		if _, ok := hotSet[m]; ok {
			w = hotWeight
		}
		p.total += w
		p.cumulative[i] = p.total
	}
	return p, nil
}

// pick maps n in [0, total) onto a machine.
func (p *Picker) pick(n int) string {
	for i, c := range p.cumulative {
		if n < c {
			return p.machines[i]
		}
	}
	return p.machines[len(p.machines)-1]
}

func (p *Picker) Pick(r *rand.Rand) string {
	return p.pick(r.IntN(p.total))
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// NewEvent builds one reading for machineID at now.
func NewEvent(r *rand.Rand, machineID string, now time.Time) Event {
	return Event{
		TS:        now.UTC().Format(TimestampLayout),
		MachineID: machineID,
		Phase:     phases[r.IntN(len(phases))],
		Watts:     round(uniform(r, 400, 1200), 2),
		Volts:     round(uniform(r, 200, 250), 1),
		Amps:      round(uniform(r, 1, 8), 2),
	}
}

type Generator struct {
	producer broker.Producer
	topic    string
	picker   *Picker
	limiter  *rate.Limiter
	rand     *rand.Rand
	log      logger.Logger
	now      func() time.Time
}

func New(producer broker.Producer, topic string, cfg config.GeneratorConfig, log logger.Logger) (*Generator, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("generator rate must be positive, got %v", cfg.Rate)
	}
	machines := cfg.Machines
	if machines <= 0 {
		machines = 20
	}
	picker, err := NewPicker(MachineIDs(machines), cfg.HotMachines, cfg.HotWeight)
	if err != nil {
		return nil, err
	}
	return &Generator{
		producer: producer,
		topic:    topic,
		picker:   picker,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		log:      log,
		now:      time.Now,
	}, nil
}

// Run publishes events until ctx ends or count events were sent (count <= 0
// means unbounded). A failed send is logged and the loop continues.
func (g *Generator) Run(ctx context.Context, count int) (int, error) {
	sent := 0
	for count <= 0 || sent < count {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return sent, nil
			}
			return sent, err
		}

		machineID := g.picker.Pick(g.rand)
		value, err := json.Marshal(NewEvent(g.rand, machineID, g.now()))
		if err != nil {
			return sent, err
		}

		delivery, err := g.producer.Publish(ctx, g.topic, []byte(machineID), value)
		if err != nil {
			if ctx.Err() != nil {
				return sent, nil
			}
			g.log.Warnw("Delivery failed", "machine_id", machineID, "error", err)
			continue
		}
		sent++
		g.log.Debugw("Delivered",
			"key", machineID,
			"topic", delivery.Topic,
			"bytes", delivery.Bytes,
			"latency", delivery.Latency,
		)
	}
	return sent, nil
}
