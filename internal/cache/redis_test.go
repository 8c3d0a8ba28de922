package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), prefix)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniRedisStore(t, "orgenrich:cache:")
	stored := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, ok, err := s.Get(ctx, "op|q")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "op|q", Entry{Payload: json.RawMessage(`{"a":"b"}`), StoredAt: stored}))
	assert.True(t, mr.Exists("orgenrich:cache:op|q"))

	e, ok, err := s.Get(ctx, "op|q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":"b"}`, string(e.Payload))
	assert.True(t, e.StoredAt.Equal(stored))
}

func TestRedisStore_LenAndClear(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniRedisStore(t, "p:")
	require.NoError(t, mr.Set("other:key", "untouched"))
	for _, k := range []string{"propublica.search|a", "propublica.search|b", "staff.extract|x"} {
		require.NoError(t, s.Put(ctx, k, Entry{NotFound: true}))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := s.Clear(ctx, "propublica.search")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, mr := newMiniRedisStore(t, "")
	require.NoError(t, mr.Set("op|q", "not json"))
	_, _, err := s.Get(context.Background(), "op|q")
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
