package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	stored := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "op|q", Entry{Payload: json.RawMessage(`{"a":1}`), StoredAt: stored}))
	e, ok, err := s.Get(ctx, "op|q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(e.Payload))
	assert.False(t, e.NotFound)
	assert.True(t, e.StoredAt.Equal(stored))

	// Upsert replaces.
	require.NoError(t, s.Put(ctx, "op|q", Entry{NotFound: true, StoredAt: stored}))
	e, ok, err = s.Get(ctx, "op|q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.NotFound)
	assert.Nil(t, e.Payload)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_ClearEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	for _, k := range []string{"a_b|1", "axb|1", "a_b|2"} {
		require.NoError(t, s.Put(ctx, k, Entry{NotFound: true, StoredAt: time.Now()}))
	}

	n, err := s.Clear(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := s.Get(ctx, "axb|1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStore_BacksCache(t *testing.T) {
	ctx := context.Background()
	c := New(openTestSQLite(t), Options{})
	calls := 0
	compute := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`"v"`), nil
	}
	_, err := c.GetOrCompute(ctx, Key{Op: "op", Query: "q"}, compute)
	require.NoError(t, err)

	fresh := New(c.Store(), Options{})
	_, err = fresh.GetOrCompute(ctx, Key{Op: "op", Query: "q"}, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `%`, likePrefix(""))
	assert.Equal(t, `a\_b\%c\\%`, likePrefix(`a_b%c\`))
}
