// Package kvstore is the swappable key-value store behind state that used to
// live only on one client device: connection requests, scheduled posts,
// notifications and revoked sessions.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Entry is one key/value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl of zero keeps the value forever.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// List returns every live entry whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close(ctx context.Context) error
}

// Collection is a typed, namespaced view over a Store. Records are stored as
// JSON under "<namespace>:<id>".
type Collection[T any] struct {
	store     Store
	namespace string
}

// NewCollection returns a collection rooted at namespace.
func NewCollection[T any](store Store, namespace string) *Collection[T] {
	return &Collection[T]{store: store, namespace: strings.TrimSuffix(namespace, ":")}
}

// Key builds the full key for the id parts.
func (c *Collection[T]) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Get decodes the record stored under the id parts.
func (c *Collection[T]) Get(ctx context.Context, parts ...string) (T, error) {
	var out T
	raw, err := c.store.Get(ctx, c.Key(parts...))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", c.Key(parts...), err)
	}
	return out, nil
}

// Put encodes value under the id parts.
func (c *Collection[T]) Put(ctx context.Context, value T, ttl time.Duration, parts ...string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.Key(parts...), err)
	}
	return c.store.Set(ctx, c.Key(parts...), raw, ttl)
}

// Delete removes the record under the id parts.
func (c *Collection[T]) Delete(ctx context.Context, parts ...string) error {
	return c.store.Delete(ctx, c.Key(parts...))
}

// List decodes every record under the given id prefix parts. Undecodable
// records are skipped.
func (c *Collection[T]) List(ctx context.Context, parts ...string) ([]T, error) {
	prefix := c.namespace + ":"
	if len(parts) > 0 {
		prefix = c.Key(parts...) + ":"
	}
	entries, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		var value T
		if err := json.Unmarshal(entry.Value, &value); err != nil {
			continue
		}
		out = append(out, value)
	}
	return out, nil
}

// DeleteAll removes every record under the given id prefix parts and reports
// how many were removed.
func (c *Collection[T]) DeleteAll(ctx context.Context, parts ...string) (int, error) {
	prefix := c.namespace + ":"
	if len(parts) > 0 {
		prefix = c.Key(parts...) + ":"
	}
	entries, err := c.store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, entry := range entries {
		if err := c.store.Delete(ctx, entry.Key); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
