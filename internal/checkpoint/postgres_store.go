package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ampere/internal/constants"
)

// PostgresStore keeps checkpoints in bronze.ingest_checkpoints, next to the
// sink table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: constants.SinkSchema + "." + constants.CheckpointTable,
	}
}

func (s *PostgresStore) Load(ctx context.Context, topic, groupID string) (Checkpoint, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE topic = $1 AND group_id = $2`, s.table)

	var doc []byte
	err := s.db.QueryRowContext(ctx, query, topic, groupID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("query checkpoint: %w", err)
	}

	return decode(doc, topic, groupID)
}

// Save upserts the document in its own implicit transaction.
func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	doc, err := encode(cp)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (topic, group_id, epoch, document, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (topic, group_id) DO UPDATE
		SET epoch = EXCLUDED.epoch, document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.db.ExecContext(ctx, query, cp.Topic, cp.GroupID, cp.Epoch, doc, cp.UpdatedAt); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Close is a no-op; the *sql.DB is shared with the sink.
func (s *PostgresStore) Close() error {
	return nil
}
