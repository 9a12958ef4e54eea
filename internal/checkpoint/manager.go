package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"ampere/internal/batch"
	"ampere/internal/logger"
	apperrors "ampere/pkg/errors"
)

type State int

const (
	Uninitialized State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "uninitialized"
}

// Manager owns the in-memory checkpoint for one topic and consumer group.
// Memory only moves after the store confirmed the write.
type Manager struct {
	store   Store
	topic   string
	groupID string
	log     logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	state   State
	current Checkpoint
}

func NewManager(store Store, topic, groupID string, log logger.Logger) *Manager {
	return &Manager{
		store:   store,
		topic:   topic,
		groupID: groupID,
		log:     log,
		now:     time.Now,
		current: Checkpoint{Topic: topic, GroupID: groupID, Offsets: batch.Watermarks{}},
	}
}

// Load reads the stored checkpoint. A missing or corrupt checkpoint leaves
// the manager Uninitialized so the start-offset policy applies.
func (m *Manager) Load(ctx context.Context) error {
	cp, err := m.store.Load(ctx, m.topic, m.groupID)
	switch {
	case errors.Is(err, ErrNotFound):
		m.log.Infow("No checkpoint found, using start offset policy",
			"topic", m.topic, "group_id", m.groupID)
		return nil
	case errors.Is(err, ErrCorrupt):
		m.log.Warnw("Checkpoint is corrupt, using start offset policy",
			"topic", m.topic, "group_id", m.groupID, "error", err)
		return nil
	case err != nil:
		return apperrors.Wrap(err, apperrors.ErrCheckpoint.
			WithDetail("message", "failed to load checkpoint").
			WithDetail("topic", m.topic).
			WithDetail("group_id", m.groupID))
	}

	if cp.Offsets == nil {
		cp.Offsets = batch.Watermarks{}
	}

	m.mu.Lock()
	m.current = cp
	m.state = Tracking
	m.mu.Unlock()

	m.log.Infow("Checkpoint loaded",
		"topic", m.topic, "group_id", m.groupID,
		"epoch", cp.Epoch, "offsets", cp.Offsets.String())
	return nil
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Resume returns the last durable offset for partition. The reader starts
// at the following offset.
func (m *Manager) Resume(partition int) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Tracking {
		return 0, false
	}
	o, ok := m.current.Offsets[partition]
	return o, ok
}

// Epoch is the epoch of the last durable checkpoint, 0 before the first.
func (m *Manager) Epoch() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Epoch
}

func (m *Manager) Current() Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.current
	cp.Offsets = m.current.Offsets.Clone()
	return cp
}

// Commit merges watermarks into the checkpoint, increments the epoch and
// saves. On failure nothing advances.
func (m *Manager) Commit(ctx context.Context, watermarks batch.Watermarks) (Checkpoint, error) {
	m.mu.RLock()
	next := Checkpoint{
		Topic:     m.topic,
		GroupID:   m.groupID,
		Epoch:     m.current.Epoch + 1,
		Offsets:   m.current.Offsets.Merge(watermarks),
		UpdatedAt: m.now().UTC(),
	}
	m.mu.RUnlock()

	if err := m.store.Save(ctx, next); err != nil {
		return Checkpoint{}, apperrors.Wrap(err, apperrors.ErrCheckpoint.
			WithDetail("message", "failed to save checkpoint").
			WithDetail("epoch", next.Epoch)).AsRetryable()
	}

	m.mu.Lock()
	m.current = next
	m.state = Tracking
	m.mu.Unlock()

	return next, nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}
