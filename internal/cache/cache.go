// Package cache memoizes external lookups in a durable key-value store.
// Successful payloads and explicit not-found markers are both cached, so a
// known-absent lookup is never repeated.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/resilience"
)

// Key identifies one lookup: an operation type plus its normalized query.
type Key struct {
	Op    string
	Query string
}

func (k Key) String() string {
	return k.Op + "|" + k.Query
}

// Entry is one cached lookup result.
type Entry struct {
	Payload  json.RawMessage `json:"payload,omitempty"`
	NotFound bool            `json:"not_found,omitempty"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store is a durable key-value backend.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	// Flush persists buffered writes. Stores that write through return nil.
	Flush(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	// Clear removes entries whose key starts with prefix ("" clears all) and
	// returns how many were removed.
	Clear(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Options configures a Cache.
type Options struct {
	// TTL ignores stored entries older than the run start minus TTL. Zero
	// keeps entries forever. Entries written during the run never expire.
	TTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// OnLookup observes every lookup, for metrics.
	OnLookup func(op string, hit bool)
}

// Cache fronts a Store with an in-process memo so identical keys return
// identical values for the whole run.
type Cache struct {
	store    Store
	memo     map[string]Entry
	ttl      time.Duration
	runStart time.Time
	now      func() time.Time
	onLookup func(op string, hit bool)

	hits   int
	misses int
}

// New wraps store.
func New(store Store, opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:    store,
		memo:     make(map[string]Entry),
		ttl:      opts.TTL,
		runStart: now(),
		now:      now,
		onLookup: opts.OnLookup,
	}
}

// GetOrCompute returns the cached entry for key, or runs compute and stores
// its result. A compute error classified as not-found is cached as a marker
// and returned as an entry with NotFound set. Any other compute error is
// returned uncached.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (json.RawMessage, error)) (Entry, error) {
	k := key.String()

	if e, ok := c.memo[k]; ok {
		c.record(key.Op, true)
		return e, nil
	}

	e, ok, err := c.store.Get(ctx, k)
	if err != nil {
		zap.L().Warn("cache read failed, treating as miss", zap.String("key", k), zap.Error(err))
		ok = false
	}
	if ok && c.fresh(e) {
		c.memo[k] = e
		c.record(key.Op, true)
		return e, nil
	}

	c.record(key.Op, false)
	payload, err := compute(ctx)
	switch {
	case err == nil:
		e = Entry{Payload: payload, StoredAt: c.now().UTC()}
	case resilience.IsNotFound(err):
		e = Entry{NotFound: true, StoredAt: c.now().UTC()}
	default:
		return Entry{}, err
	}

	if err := c.store.Put(ctx, k, e); err != nil {
		return Entry{}, resilience.Persistence("cache.put", err)
	}
	c.memo[k] = e
	return e, nil
}

// Flush persists the store.
func (c *Cache) Flush(ctx context.Context) error {
	if err := c.store.Flush(ctx); err != nil {
		return resilience.Persistence("cache.flush", err)
	}
	return nil
}

// Stats returns hit and miss counts for this run.
func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// Store returns the backing store.
func (c *Cache) Store() Store {
	return c.store
}

// Close flushes and closes the store.
func (c *Cache) Close(ctx context.Context) error {
	flushErr := c.Flush(ctx)
	if err := c.store.Close(); err != nil {
		return eris.Wrap(err, "cache: close store")
	}
	return flushErr
}

func (c *Cache) fresh(e Entry) bool {
	if c.ttl <= 0 {
		return true
	}
	return e.StoredAt.After(c.runStart.Add(-c.ttl))
}

func (c *Cache) record(op string, hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	if c.onLookup != nil {
		c.onLookup(op, hit)
	}
}

// Fetch is a typed GetOrCompute. found is false when the key holds a
// not-found marker. The value is always decoded from the stored payload, so
// the first call and later hits return identical values.
func Fetch[T any](ctx context.Context, c *Cache, key Key, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	e, err := c.GetOrCompute(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrapf(err, "cache: encode %s", key.Op)
		}
		return data, nil
	})
	if err != nil {
		return zero, false, err
	}
	if e.NotFound {
		return zero, false, nil
	}

	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return zero, false, eris.Wrapf(err, "cache: decode %s", key.Op)
	}
	return v, true, nil
}
