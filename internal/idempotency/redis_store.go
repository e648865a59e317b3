package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:v1:"

// RedisStore keeps records in Redis and relies on key expiry for eviction.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore builds a store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.Expired(s.now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	// SetNX keeps the first writer when two processes race on one key.
	if err := s.client.SetNX(ctx, redisKeyPrefix+rec.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist idempotency record: %w", err)
	}
	return nil
}
