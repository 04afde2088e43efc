package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis under a key prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Keys are stored as "<prefix>:kv:<key>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "fundlink"
	}
	return &RedisStore{client: client, prefix: trimmed + ":kv:"}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return value, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+escapeGlob(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for i, raw := range values {
		// Keys may expire between SCAN and MGET.
		str, ok := raw.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: strings.TrimPrefix(keys[i], r.prefix), Value: []byte(str)})
	}
	sortEntries(entries)
	return entries, nil
}

func (r *RedisStore) Close(ctx context.Context) error { return nil }

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
