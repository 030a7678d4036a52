package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the bucketed response cache behind the orchestrator. Put and
// Match must be atomic per key; concurrent fetch handlers share no other
// state.
type Store interface {
	// Match returns the stored response for key, or nil when absent.
	Match(ctx context.Context, bucket, key string) (*Response, error)
	Put(ctx context.Context, bucket, key string, resp *Response) error
	// Buckets enumerates every bucket currently holding at least one entry.
	Buckets(ctx context.Context) ([]string, error)
	// Drop removes a bucket and all its entries.
	Drop(ctx context.Context, bucket string) error
}

const storeKeyPrefix = "cache:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed Store. A zero ttl keeps entries until
// their bucket is dropped.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Match(ctx context.Context, bucket, key string) (*Response, error) {
	val, err := r.client.Get(ctx, storeKey(bucket, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("matching cache entry: %w", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("unmarshalling cache entry: %w", err)
	}
	resp.Source = SourceCache
	return &resp, nil
}

func (r *RedisStore) Put(ctx context.Context, bucket, key string, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshalling cache entry: %w", err)
	}
	if err := r.client.Set(ctx, storeKey(bucket, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Buckets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var buckets []string

	iter := r.client.Scan(ctx, 0, storeKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), storeKeyPrefix)
		bucket, _, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		if _, dup := seen[bucket]; dup {
			continue
		}
		seen[bucket] = struct{}{}
		buckets = append(buckets, bucket)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning cache buckets: %w", err)
	}
	return buckets, nil
}

func (r *RedisStore) Drop(ctx context.Context, bucket string) error {
	iter := r.client.Scan(ctx, 0, storeKey(bucket, "*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("dropping cache bucket %q: %w", bucket, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache bucket %q: %w", bucket, err)
	}
	return nil
}

func storeKey(bucket, key string) string {
	return fmt.Sprintf("%s%s:%s", storeKeyPrefix, bucket, key)
}
