package otp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for codes
const redisKeyPrefix = "otp:"

// RedisStore keeps entries in Redis with a native expiry, so every server
// instance sees the same codes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, phone string, e Entry, ttl time.Duration) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(phone), val, ttl).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, phone string) (Entry, bool, error) {
	val, err := s.client.Get(ctx, s.key(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, s.key(phone)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a phone number.
func (s *RedisStore) key(phone string) string {
	return redisKeyPrefix + phone
}

// NewStore creates a Store for the given driver. The Redis driver connects
// to redisURL and pings it before returning.
func NewStore(ctx context.Context, storeType StoreType, redisURL string) (Store, error) {
	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil

	case StoreTypeRedis:
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewRedisStore(client), nil

	default:
		return nil, ErrInvalidStoreType
	}
}
