package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// reservedMarker holds a key between reservation and the recorded outcome.
const reservedMarker = "__reserved__"

// IdempotencyStore tracks checkout attempt keys in Redis so a replayed
// request can be answered from the recorded outcome instead of submitting a
// second sale.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *IdempotencyStore) getKey(key string) string {
	return "idem:checkout:" + key
}

// Reserve claims the key for the current attempt. It returns false when
// another attempt already holds it.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, s.getKey(key), reservedMarker, s.ttl).Result()
}

// Result returns the order id recorded for the key, or "" when the key is
// unknown or still reserved without an outcome.
func (s *IdempotencyStore) Result(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.getKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if val == reservedMarker {
		return "", nil
	}
	return val, nil
}

// StoreResult records the completed outcome for the key.
func (s *IdempotencyStore) StoreResult(ctx context.Context, key, orderID string) error {
	return s.client.Set(ctx, s.getKey(key), orderID, s.ttl).Err()
}

// Release frees the key so the client may retry the attempt.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.getKey(key)).Err()
}
