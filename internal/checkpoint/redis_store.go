package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each checkpoint as one JSON string key.
//
// A plain SET is only on disk when it returns if the server runs with
// appendonly yes and appendfsync always. Against any other setup enable
// WithAOFWait so Save blocks on WAITAOF until the local AOF has fsynced the
// write.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	aofWait time.Duration
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// WithAOFWait makes Save wait up to timeout for the AOF fsync. Zero turns the
// wait off. Requires Redis 7.2 with appendonly enabled.
func (s *RedisStore) WithAOFWait(timeout time.Duration) *RedisStore {
	s.aofWait = timeout
	return s
}

func (s *RedisStore) key(topic, groupID string) string {
	return s.prefix + topic + ":" + groupID
}

func (s *RedisStore) Load(ctx context.Context, topic, groupID string) (Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(topic, groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("redis GET failed: %w", err)
	}
	return decode(data, topic, groupID)
}

func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	data, err := encode(cp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(cp.Topic, cp.GroupID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if s.aofWait > 0 {
		return s.waitAOF(ctx)
	}
	return nil
}

// waitAOF runs WAITAOF 1 0 <ms>; the reply is [local, replicas].
func (s *RedisStore) waitAOF(ctx context.Context) error {
	reply, err := s.client.Do(ctx, "WAITAOF", 1, 0, s.aofWait.Milliseconds()).Slice()
	if err != nil {
		return fmt.Errorf("redis WAITAOF failed: %w", err)
	}
	if len(reply) == 0 {
		return errors.New("redis WAITAOF returned an empty reply")
	}
	if local, ok := reply[0].(int64); !ok || local < 1 {
		return fmt.Errorf("redis WAITAOF timed out after %s before the local fsync", s.aofWait)
	}
	return nil
}

// Close leaves the shared client to its owner.
func (s *RedisStore) Close() error {
	return nil
}
