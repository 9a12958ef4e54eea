//go:build integration

package sink

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/batch"
	"ampere/internal/telemetry"
	"ampere/internal/testutil"
)

func buildBatch(t *testing.T, epoch int64, payloads ...string) batch.MicroBatch {
	t.Helper()
	acc := batch.NewAccumulator(len(payloads)+1, epoch)
	for i, p := range payloads {
		acc.Add(telemetry.Decode(telemetry.RawMessage{
			Topic:     "telemetry.power",
			Partition: 0,
			Offset:    int64(i),
			Value:     []byte(p),
		}))
	}
	mb, ok := acc.Flush(time.Now())
	require.True(t, ok)
	return mb
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM bronze.raw_power").Scan(&n))
	return n
}

func TestPostgresWriter_Integration_ReplayIsIdempotent(t *testing.T) {
	db := testutil.Postgres(t)
	w := NewPostgresWriter(db, 2)
	ctx := context.Background()

	payloads := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		payloads = append(payloads, fmt.Sprintf(
			`{"ts":"2025-01-01T10:00:0%d.000Z","machine_id":"M001","phase":"A","watts":800,"volts":230,"amps":3.5}`, i))
	}
	mb := buildBatch(t, 0, payloads...)

	res, err := w.Write(ctx, mb)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, 0, res.Skipped)

	res, err = w.Write(ctx, mb)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 5, res.Skipped)
	assert.Equal(t, 5, countRows(t, db))

	var powerKW float64
	require.NoError(t, db.QueryRow(
		"SELECT power_kw FROM bronze.raw_power WHERE event_ts = '2025-01-01T10:00:03Z'").Scan(&powerKW))
	assert.InDelta(t, 0.8, powerKW, 1e-9)
}

func TestPostgresWriter_Integration_NullTimestampDedupes(t *testing.T) {
	db := testutil.Postgres(t)
	w := NewPostgresWriter(db, 100)
	ctx := context.Background()

	bad := `{"ts":"not-a-time","machine_id":"M002","watts":500}`
	_, err := w.Write(ctx, buildBatch(t, 0, bad))
	require.NoError(t, err)
	res, err := w.Write(ctx, buildBatch(t, 1, bad))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, countRows(t, db))

	var eventTS sql.NullTime
	require.NoError(t, db.QueryRow("SELECT event_ts FROM bronze.raw_power").Scan(&eventTS))
	assert.False(t, eventTS.Valid)
}

func TestPostgresWriter_Integration_RawColumns(t *testing.T) {
	db := testutil.Postgres(t)
	w := NewPostgresWriter(db, 100)
	ctx := context.Background()

	_, err := w.Write(ctx, buildBatch(t, 0, `{"machine_id":"M003","ts":"2025-01-01T10:00:00Z"}`, `garbage{`))
	require.NoError(t, err)

	rows, err := db.Query("SELECT raw_payload IS NULL, convert_from(raw_bytes, 'UTF8') FROM bronze.raw_power ORDER BY machine_id NULLS LAST")
	require.NoError(t, err)
	defer rows.Close()

	var got []struct {
		nullPayload bool
		raw         string
	}
	for rows.Next() {
		var r struct {
			nullPayload bool
			raw         string
		}
		require.NoError(t, rows.Scan(&r.nullPayload, &r.raw))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.False(t, got[0].nullPayload)
	assert.True(t, got[1].nullPayload)
	assert.Equal(t, "garbage{", got[1].raw)
}

func TestPostgresWriter_Integration_PayloadsJSONBRejects(t *testing.T) {
	db := testutil.Postgres(t)
	w := NewPostgresWriter(db, 100)
	ctx := context.Background()

	payloads := []string{
		`{"ts":"2025-01-01T10:00:00Z","machine_id":"M\u0000","phase":"A","watts":1,"volts":2,"amps":3}`,
		`{"ts":"2025-01-01T10:00:00Z","machine_id":"\ud800","phase":"A","watts":1,"volts":2,"amps":3}`,
		`{"ts":"2025-01-01T10:00:00Z","machine_id":"M001","phase":"A","watts":1e999999,"volts":2,"amps":3}`,
	}
	for i, p := range payloads {
		res, err := w.Write(ctx, buildBatch(t, int64(i), p))
		require.NoError(t, err, "payload %s", p)
		assert.Equal(t, 1, res.Inserted, "payload %s", p)
	}
	assert.Equal(t, len(payloads), countRows(t, db))

	var withJSON int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM bronze.raw_power WHERE raw_payload IS NOT NULL").Scan(&withJSON))
	assert.Zero(t, withJSON)
}

func TestPostgresWriter_Integration_DistinctMalformedPayloadsAllLand(t *testing.T) {
	db := testutil.Postgres(t)
	w := NewPostgresWriter(db, 100)
	ctx := context.Background()

	payloads := []string{`garbage-one`, `{"watts":900}`, `[1,2,3]`, `{"machine_id":"M004"}`}
	res, err := w.Write(ctx, buildBatch(t, 0, payloads...))
	require.NoError(t, err)
	assert.Equal(t, len(payloads), res.Inserted)

	res, err = w.Write(ctx, buildBatch(t, 1, payloads...))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, len(payloads), countRows(t, db))

	var raw string
	require.NoError(t, db.QueryRow(
		"SELECT convert_from(raw_bytes, 'UTF8') FROM bronze.raw_power WHERE event_id = $1",
		telemetry.DeriveRawEventID([]byte(`{"watts":900}`))).Scan(&raw))
	assert.Equal(t, `{"watts":900}`, raw)
}
