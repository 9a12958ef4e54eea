package sink

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/constants"
	"ampere/internal/telemetry"
)

func TestBuildInsert(t *testing.T) {
	ingestTS := time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC)
	recs := []telemetry.Record{
		telemetry.Decode(telemetry.RawMessage{Offset: 1, Value: []byte(`{"ts":"2024-05-01T10:00:00.123Z","machine_id":"M001","phase":"A","watts":800.0,"volts":230.0,"amps":3.5}`)}),
		telemetry.Decode(telemetry.RawMessage{Offset: 2, Value: []byte(`garbage`)}),
	}

	query, args := buildInsert("bronze.raw_power", recs, ingestTS)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO bronze.raw_power (event_id, event_ts, machine_id, power_kw, voltage_v, current_a, temp_c, ingest_ts, raw_payload, raw_bytes) VALUES "))
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11, $12,")
	assert.True(t, strings.HasSuffix(query, "($11, $12, $13, $14, $15, $16, $17, $18, $19, $20) ON CONFLICT (event_id, event_ts) DO NOTHING"))
	require.Len(t, args, 20)

	assert.Equal(t, recs[0].EventID, args[0])
	assert.Equal(t, sql.NullFloat64{Float64: 0.8, Valid: true}, args[3])
	assert.Equal(t, sql.NullFloat64{}, args[6], "temp_c is always absent")
	assert.Equal(t, ingestTS, args[7])
	assert.Equal(t, sql.NullString{String: string(recs[0].Raw), Valid: true}, args[8])

	assert.Equal(t, sql.NullTime{}, args[11], "unparseable payload has no event_ts")
	assert.Equal(t, sql.NullString{}, args[18], "non-JSON payload has no raw_payload")
	assert.Equal(t, []byte("garbage"), args[19])
}

func TestBuildInsert_MaxChunkFitsParameterLimit(t *testing.T) {
	recs := make([]telemetry.Record, constants.MaxSinkChunk)
	_, args := buildInsert("t", recs, time.Now())

	assert.Len(t, args, constants.MaxSinkChunk*constants.SinkColumnsPerRow)
	assert.LessOrEqual(t, len(args), 65535)
	assert.Len(t, columns, constants.SinkColumnsPerRow)
}

func TestJSONPayload(t *testing.T) {
	tests := []struct {
		name  string
		raw   []byte
		valid bool
	}{
		{"object", []byte(`{"a":1}`), true},
		{"array", []byte(`[1,2]`), true},
		{"not json", []byte(`{a:1}`), false},
		{"empty", nil, false},
		{"nul escape", []byte(`{"a":"\u0000"}`), false},
		{"invalid utf8", []byte("{\"a\":\"\xff\"}"), false},
		{"lone high surrogate", []byte(`{"machine_id":"\ud800"}`), false},
		{"lone low surrogate", []byte(`{"a":"x\udc00y"}`), false},
		{"high surrogate at end", []byte(`["\ud83d"]`), false},
		{"surrogate pair", []byte(`{"a":"\ud83d\ude00"}`), true},
		{"escaped backslash before u", []byte(`{"a":"\\u0000"}`), true},
		{"overflowing number", []byte(`{"watts":1e999999}`), false},
		{"vanishing exponent", []byte(`{"watts":1e-999999}`), false},
		{"long mantissa", []byte(`{"watts":1` + strings.Repeat("0", 400) + `}`), false},
		{"ordinary exponent", []byte(`{"watts":1.5E+3,"volts":-2e-3}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jsonPayload(tt.raw)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, string(tt.raw), got.String)
			}
		})
	}
}

func TestBuildInsert_PayloadsPostgresWouldReject(t *testing.T) {
	payloads := []string{
		`{"ts":"2024-05-01T10:00:00Z","machine_id":"M\u0000","phase":"A","watts":1,"volts":2,"amps":3}`,
		`{"ts":"2024-05-01T10:00:00Z","machine_id":"\ud800","phase":"A","watts":1,"volts":2,"amps":3}`,
		`{"ts":"2024-05-01T10:00:00Z","machine_id":"M001","phase":"A","watts":1e999999,"volts":2,"amps":3}`,
	}
	recs := make([]telemetry.Record, len(payloads))
	for i, p := range payloads {
		recs[i] = telemetry.Decode(telemetry.RawMessage{Offset: int64(i), Value: []byte(p)})
	}

	_, args := buildInsert("t", recs, time.Now())
	require.Len(t, args, len(payloads)*constants.SinkColumnsPerRow)

	for i, p := range payloads {
		row := args[i*constants.SinkColumnsPerRow : (i+1)*constants.SinkColumnsPerRow]
		machineID := row[2].(sql.NullString)
		assert.False(t, strings.ContainsRune(machineID.String, 0), "machine_id of %s", p)
		assert.Equal(t, sql.NullString{}, row[8], "raw_payload of %s", p)
		assert.Equal(t, []byte(p), row[9])
	}
	assert.Equal(t, sql.NullFloat64{}, args[2*constants.SinkColumnsPerRow+3], "power_kw stays empty on overflow")
}

func TestRawBytesNeverNil(t *testing.T) {
	assert.NotNil(t, rawBytes(nil))
	assert.Equal(t, []byte("x"), rawBytes([]byte("x")))
}

func TestNewPostgresWriter_ChunkBounds(t *testing.T) {
	assert.Equal(t, constants.DefaultSinkChunk, NewPostgresWriter(nil, 0).chunkSize)
	assert.Equal(t, constants.MaxSinkChunk, NewPostgresWriter(nil, constants.MaxSinkChunk+1).chunkSize)
	assert.Equal(t, 42, NewPostgresWriter(nil, 42).chunkSize)
}
