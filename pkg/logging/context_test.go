package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithServiceName(ctx, "ingest-service")
	ctx = WithInstanceID(ctx, "abc")
	ctx = WithEpoch(ctx, 12)

	fields := GetLogFields(ctx)
	assert.Equal(t, []interface{}{
		"service_name", "ingest-service",
		"instance_id", "abc",
		"epoch", "12",
	}, fields)
}

func TestGetEpoch_Missing(t *testing.T) {
	_, ok := GetEpoch(context.Background())
	assert.False(t, ok)
}

func TestEarlyLog_Error(t *testing.T) {
	var buf bytes.Buffer
	l := &EarlyLog{out: &buf}

	l.Error("Failed to load config: %v", "no such file")

	assert.Equal(t, "ampere: bootstrap: Failed to load config: no such file\n", buf.String())
}
