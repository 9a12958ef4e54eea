package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"ampere/internal/batch"
	"ampere/internal/constants"
	"ampere/internal/telemetry"
	apperrors "ampere/pkg/errors"
)

var columns = []string{
	"event_id",
	"event_ts",
	"machine_id",
	"power_kw",
	"voltage_v",
	"current_a",
	"temp_c",
	"ingest_ts",
	"raw_payload",
	"raw_bytes",
}

type PostgresWriter struct {
	db        *sql.DB
	table     string
	chunkSize int
	now       func() time.Time
}

func NewPostgresWriter(db *sql.DB, chunkSize int) *PostgresWriter {
	if chunkSize <= 0 {
		chunkSize = constants.DefaultSinkChunk
	}
	if chunkSize > constants.MaxSinkChunk {
		chunkSize = constants.MaxSinkChunk
	}
	return &PostgresWriter{
		db:        db,
		table:     constants.SinkSchema + "." + constants.SinkTable,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// Write inserts every record of b in one transaction, chunked into
// multi-row statements. Rows whose (event_id, event_ts) already exist are
// skipped.
func (w *PostgresWriter) Write(ctx context.Context, b batch.MicroBatch) (Result, error) {
	start := time.Now()
	result := Result{Epoch: b.Epoch, Watermarks: b.Watermarks}

	if b.Len() == 0 {
		return result, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return result, w.wrap(err, b, "failed to begin transaction")
	}
	defer tx.Rollback()

	ingestTS := w.now().UTC()
	for lo := 0; lo < len(b.Records); lo += w.chunkSize {
		hi := lo + w.chunkSize
		if hi > len(b.Records) {
			hi = len(b.Records)
		}

		query, args := buildInsert(w.table, b.Records[lo:hi], ingestTS)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return result, w.wrap(err, b, "failed to insert chunk")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, w.wrap(err, b, "failed to read affected rows")
		}
		result.Inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return result, w.wrap(err, b, "failed to commit transaction")
	}

	result.Skipped = b.Len() - result.Inserted
	result.Duration = time.Since(start)
	return result, nil
}

func (w *PostgresWriter) wrap(err error, b batch.MicroBatch, msg string) error {
	return apperrors.Wrap(err, apperrors.ErrSinkWrite.
		WithDetail("message", msg).
		WithDetail("epoch", b.Epoch).
		WithDetail("records", b.Len()).
		WithDetail("offsets", b.RangeString())).AsRetryable()
}

func buildInsert(table string, records []telemetry.Record, ingestTS time.Time) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(records)*len(columns))

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(columns)+j+1)
		}
		sb.WriteByte(')')

		args = append(args,
			rec.EventID,
			rec.EventTS,
			rec.MachineID,
			rec.PowerKW,
			rec.VoltageV,
			rec.CurrentA,
			rec.TempC,
			ingestTS,
			jsonPayload(rec.Raw),
			rawBytes(rec.Raw),
		)
	}
	sb.WriteString(" ON CONFLICT (event_id, event_ts) DO NOTHING")

	return sb.String(), args
}

func rawBytes(raw []byte) []byte {
	if raw == nil {
		return []byte{}
	}
	return raw
}
