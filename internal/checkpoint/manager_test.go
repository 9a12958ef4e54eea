package checkpoint

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/batch"
	"ampere/internal/logger"
	apperrors "ampere/pkg/errors"
)

type memoryStore struct {
	mu      sync.Mutex
	cp      *Checkpoint
	loadErr error
	saveErr error
	saves   int
}

func (s *memoryStore) Load(_ context.Context, _, _ string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return Checkpoint{}, s.loadErr
	}
	if s.cp == nil {
		return Checkpoint{}, ErrNotFound
	}
	cp := *s.cp
	cp.Offsets = s.cp.Offsets.Clone()
	return cp, nil
}

func (s *memoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp.Offsets = cp.Offsets.Clone()
	s.cp = &cp
	s.saves++
	return nil
}

func (s *memoryStore) Close() error { return nil }

func newTestManager(store Store) *Manager {
	return NewManager(store, "telemetry.power", "factory-power-bronze", logger.NopLogger())
}

func TestManager_LoadNotFound(t *testing.T) {
	m := newTestManager(&memoryStore{})

	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, Uninitialized, m.State())
	assert.Equal(t, int64(0), m.Epoch())

	_, ok := m.Resume(0)
	assert.False(t, ok)
}

func TestManager_LoadCorruptFallsBack(t *testing.T) {
	m := newTestManager(&memoryStore{loadErr: ErrCorrupt})

	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, Uninitialized, m.State())
}

func TestManager_LoadFailure(t *testing.T) {
	m := newTestManager(&memoryStore{loadErr: errors.New("connection refused")})

	err := m.Load(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCheckpoint(err))
}

func TestManager_LoadExisting(t *testing.T) {
	store := &memoryStore{cp: &Checkpoint{
		Topic:   "telemetry.power",
		GroupID: "factory-power-bronze",
		Epoch:   12,
		Offsets: batch.Watermarks{0: 100, 2: 7},
	}}
	m := newTestManager(store)

	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, Tracking, m.State())
	assert.Equal(t, int64(12), m.Epoch())

	off, ok := m.Resume(0)
	assert.True(t, ok)
	assert.Equal(t, int64(100), off)

	_, ok = m.Resume(1)
	assert.False(t, ok, "unknown partition falls back to policy")
}

func TestManager_CommitIsMonotonic(t *testing.T) {
	store := &memoryStore{}
	m := newTestManager(store)
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))

	cp, err := m.Commit(ctx, batch.Watermarks{0: 10, 1: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Epoch)
	assert.Equal(t, Tracking, m.State())

	cp, err = m.Commit(ctx, batch.Watermarks{0: 3, 2: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Epoch)
	assert.Equal(t, batch.Watermarks{0: 10, 1: 5, 2: 9}, cp.Offsets)

	assert.Equal(t, 2, store.saves)
	assert.Equal(t, batch.Watermarks{0: 10, 1: 5, 2: 9}, store.cp.Offsets)
}

func TestManager_CommitFailureKeepsState(t *testing.T) {
	store := &memoryStore{}
	m := newTestManager(store)
	ctx := context.Background()

	_, err := m.Commit(ctx, batch.Watermarks{0: 10})
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	_, err = m.Commit(ctx, batch.Watermarks{0: 20})
	require.Error(t, err)
	assert.True(t, apperrors.IsCheckpoint(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsRetryable())

	assert.Equal(t, int64(1), m.Epoch())
	off, _ := m.Resume(0)
	assert.Equal(t, int64(10), off)
}

func TestManager_CurrentIsACopy(t *testing.T) {
	m := newTestManager(&memoryStore{})
	_, err := m.Commit(context.Background(), batch.Watermarks{0: 1})
	require.NoError(t, err)

	cp := m.Current()
	cp.Offsets[0] = 999

	off, _ := m.Resume(0)
	assert.Equal(t, int64(1), off)
}
