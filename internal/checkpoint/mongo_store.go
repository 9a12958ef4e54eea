package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"ampere/internal/batch"
)

type mongoCheckpoint struct {
	ID        string           `bson:"_id"`
	Topic     string           `bson:"topic"`
	GroupID   string           `bson:"group_id"`
	Epoch     int64            `bson:"epoch"`
	Offsets   map[string]int64 `bson:"offsets"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

// MongoStore upserts one document per topic and group with majority,
// journaled write concern.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	wc := writeconcern.Majority()
	wc.Journal = boolPtr(true)
	return &MongoStore{
		collection: db.Collection(collection, options.Collection().SetWriteConcern(wc)),
	}
}

func boolPtr(b bool) *bool { return &b }

func documentID(topic, groupID string) string {
	return topic + "/" + groupID
}

func (s *MongoStore) Load(ctx context.Context, topic, groupID string) (Checkpoint, error) {
	var doc mongoCheckpoint
	err := s.collection.FindOne(ctx, bson.M{"_id": documentID(topic, groupID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to find checkpoint: %w", err)
	}

	cp := Checkpoint{
		Topic:     doc.Topic,
		GroupID:   doc.GroupID,
		Epoch:     doc.Epoch,
		Offsets:   make(batch.Watermarks, len(doc.Offsets)),
		UpdatedAt: doc.UpdatedAt,
	}
	for k, v := range doc.Offsets {
		p, err := strconv.Atoi(k)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("%w: partition key %q", ErrCorrupt, k)
		}
		cp.Offsets[p] = v
	}

	if err := cp.validate(topic, groupID); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *MongoStore) Save(ctx context.Context, cp Checkpoint) error {
	doc := mongoCheckpoint{
		ID:        documentID(cp.Topic, cp.GroupID),
		Topic:     cp.Topic,
		GroupID:   cp.GroupID,
		Epoch:     cp.Epoch,
		Offsets:   make(map[string]int64, len(cp.Offsets)),
		UpdatedAt: cp.UpdatedAt,
	}
	for p, o := range cp.Offsets {
		doc.Offsets[strconv.Itoa(p)] = o
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// Close leaves the shared client to its owner.
func (s *MongoStore) Close() error {
	return nil
}
