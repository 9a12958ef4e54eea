package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	err := ErrSinkWrite.WithCause(fmt.Errorf("connection reset")).WithDetail("epoch", int64(4))

	assert.True(t, stderrors.Is(err, ErrSinkWrite))
	assert.False(t, stderrors.Is(err, ErrCheckpoint))

	wrapped := fmt.Errorf("commit: %w", err)
	assert.True(t, IsSinkWrite(wrapped))
	assert.False(t, IsCheckpoint(wrapped))
}

func TestError_Classification(t *testing.T) {
	assert.True(t, ErrSinkWrite.IsRetryable())
	assert.False(t, ErrSinkWrite.IsFatal())

	assert.False(t, ErrConfiguration.IsRetryable())
	assert.True(t, ErrConfiguration.IsFatal())

	forced := ErrSinkWrite.AsFatal()
	assert.True(t, forced.IsFatal())
	assert.False(t, forced.IsRetryable())
}

func TestError_WithDetailDoesNotShareMap(t *testing.T) {
	a := ErrCheckpoint.WithDetail("partition", 1)
	b := a.WithDetail("partition", 2)

	assert.Equal(t, 1, a.Details["partition"])
	assert.Equal(t, 2, b.Details["partition"])
	assert.Empty(t, ErrCheckpoint.Details)
}

func TestFields(t *testing.T) {
	err := ErrSinkWrite.WithCause(fmt.Errorf("boom")).WithDetail("epoch", int64(7))
	fields := Fields(err)

	assert.Contains(t, fields, "error_code")
	assert.Contains(t, fields, "SINK_WRITE")
	assert.Contains(t, fields, "epoch")

	plain := Fields(fmt.Errorf("plain"))
	assert.Len(t, plain, 2)
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("exploded")
	var appErr *Error
	assert.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
	assert.Contains(t, appErr.Details["stack_trace"], "RecoverPanic")
	assert.EqualError(t, stderrors.Unwrap(err), "panic: exploded")

	sentinel := stderrors.New("boom")
	assert.ErrorIs(t, RecoverPanic(sentinel), sentinel)
}
