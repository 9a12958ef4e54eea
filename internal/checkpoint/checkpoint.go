package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ampere/internal/batch"
)

var (
	// ErrNotFound means no checkpoint has been written for the topic and group.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt means a checkpoint exists but cannot be decoded.
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// Checkpoint records, per partition, the highest offset whose record is
// durably in the sink.
type Checkpoint struct {
	Topic     string           `json:"topic"`
	GroupID   string           `json:"group_id"`
	Epoch     int64            `json:"epoch"`
	Offsets   batch.Watermarks `json:"offsets"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store persists checkpoints. Save must be durable before it returns.
type Store interface {
	Load(ctx context.Context, topic, groupID string) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
	Close() error
}

func encode(cp Checkpoint) ([]byte, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

func decode(data []byte, topic, groupID string) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := cp.validate(topic, groupID); err != nil {
		return Checkpoint{}, err
	}
	if cp.Offsets == nil {
		cp.Offsets = batch.Watermarks{}
	}
	return cp, nil
}

func (cp Checkpoint) validate(topic, groupID string) error {
	if cp.Topic != topic || cp.GroupID != groupID {
		return fmt.Errorf("%w: written for %s/%s", ErrCorrupt, cp.Topic, cp.GroupID)
	}
	if cp.Epoch < 0 {
		return fmt.Errorf("%w: negative epoch %d", ErrCorrupt, cp.Epoch)
	}
	for p, o := range cp.Offsets {
		if p < 0 || o < 0 {
			return fmt.Errorf("%w: invalid offset %d for partition %d", ErrCorrupt, o, p)
		}
	}
	return nil
}
