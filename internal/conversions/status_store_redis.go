package conversions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "narrate:conversion:"

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStatusStore keeps snapshots as JSON strings with a TTL so every API
// and worker process sees the same progress.
type RedisStatusStore struct {
	client redisKV
	ttl    time.Duration
}

// NewRedisStatusStore wraps a connected client.
func NewRedisStatusStore(client redis.Cmdable, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusStore{client: client, ttl: ttl}
}

func (s *RedisStatusStore) Put(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job status: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+job.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set job status: %w", err)
	}
	return nil
}

func (s *RedisStatusStore) Get(ctx context.Context, jobID string) (Job, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("redis get job status: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job status: %w", err)
	}
	return job, nil
}

var _ StatusStore = (*RedisStatusStore)(nil)
