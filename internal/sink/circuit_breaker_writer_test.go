package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ampere/internal/batch"
	"ampere/internal/config"
	apperrors "ampere/pkg/errors"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(ctx context.Context, b batch.MicroBatch) (Result, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(Result), args.Error(1)
}

func TestCircuitBreakerWriter_Disabled(t *testing.T) {
	inner := &mockWriter{}
	b := batch.MicroBatch{Epoch: 1}
	inner.On("Write", mock.Anything, b).Return(Result{Epoch: 1, Inserted: 3}, nil).Once()

	w := NewCircuitBreakerWriter(inner, config.CircuitBreakerConfig{Enabled: false})
	res, err := w.Write(context.Background(), b)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, "disabled", w.State())
	assert.False(t, w.IsOpen())
	inner.AssertExpectations(t)
}

func TestCircuitBreakerWriter_PassesResult(t *testing.T) {
	inner := &mockWriter{}
	inner.On("Write", mock.Anything, mock.Anything).Return(Result{Epoch: 4, Inserted: 2, Skipped: 1}, nil)

	w := NewCircuitBreakerWriter(inner, config.CircuitBreakerConfig{Enabled: true})
	res, err := w.Write(context.Background(), batch.MicroBatch{Epoch: 4})

	require.NoError(t, err)
	assert.Equal(t, Result{Epoch: 4, Inserted: 2, Skipped: 1}, res)
	assert.Equal(t, "closed", w.State())
}

func TestCircuitBreakerWriter_OpensOnFailures(t *testing.T) {
	inner := &mockWriter{}
	inner.On("Write", mock.Anything, mock.Anything).Return(Result{}, errors.New("connection reset"))

	w := NewCircuitBreakerWriter(inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Hour,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := w.Write(ctx, batch.MicroBatch{Epoch: 1})
		require.Error(t, err)
	}
	assert.True(t, w.IsOpen())

	_, err := w.Write(ctx, batch.MicroBatch{Epoch: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsSinkWrite(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsRetryable())

	inner.AssertNumberOfCalls(t, "Write", 2)
}

func TestCircuitBreakerWriter_CancelledContext(t *testing.T) {
	inner := &mockWriter{}
	w := NewCircuitBreakerWriter(inner, config.CircuitBreakerConfig{Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Write(ctx, batch.MicroBatch{})
	assert.ErrorIs(t, err, context.Canceled)
	inner.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}
