package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "session:abc", []byte("x"), time.Minute))
	_, err := store.Get(ctx, "session:abc")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "session:abc")
	require.ErrorIs(t, err, ErrNotFound)

	entries, err := store.List(ctx, "session:")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryStoreListIsPrefixedAndSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "post:b", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "post:a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "poster:z", []byte("3"), 0))

	entries, err := store.List(ctx, "post:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "post:a", entries[0].Key)
	assert.Equal(t, "post:b", entries[1].Key)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	original := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", original, 0))
	original[0] = 'z'

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	value[1] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestCollectionRoundTripAndScopedList(t *testing.T) {
	ctx := context.Background()
	col := NewCollection[record](NewMemoryStore(), "connections:")

	require.NoError(t, col.Put(ctx, record{Name: "first", Count: 1}, 0, "inv-1", "ven-1"))
	require.NoError(t, col.Put(ctx, record{Name: "second", Count: 2}, 0, "inv-1", "ven-2"))
	require.NoError(t, col.Put(ctx, record{Name: "other", Count: 3}, 0, "inv-2", "ven-1"))

	got, err := col.Get(ctx, "inv-1", "ven-2")
	require.NoError(t, err)
	assert.Equal(t, record{Name: "second", Count: 2}, got)
	assert.Equal(t, "connections:inv-1:ven-2", col.Key("inv-1", "ven-2"))

	scoped, err := col.List(ctx, "inv-1")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	all, err := col.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, col.Delete(ctx, "inv-1", "ven-1"))
	_, err = col.Get(ctx, "inv-1", "ven-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionListSkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	col := NewCollection[record](store, "posts")
	require.NoError(t, store.Set(ctx, "posts:bad", []byte("{not json"), 0))
	require.NoError(t, col.Put(ctx, record{Name: "ok"}, 0, "good"))

	got, err := col.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Name)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `post\*:\?\[x\]`, escapeGlob("post*:?[x]"))
}

func TestCollectionDeleteAllStaysInsidePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	posts := NewCollection[record](store, "posts")

	require.NoError(t, posts.Put(ctx, record{Name: "a"}, 0, "vendor-1", "p1"))
	require.NoError(t, posts.Put(ctx, record{Name: "b"}, 0, "vendor-1", "p2"))
	require.NoError(t, posts.Put(ctx, record{Name: "c"}, 0, "vendor-10", "p3"))

	removed, err := posts.DeleteAll(ctx, "vendor-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := posts.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []record{{Name: "c"}}, left)
}
