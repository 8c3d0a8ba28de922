package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/db"
)

// pgPool is the subset of pgxpool.Pool used by PostgresStore.
type pgPool interface {
	db.Pool
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const postgresTable = "orgenrich_cache"

// PostgresStore implements Store on a shared Postgres table so several
// operators can reuse each other's lookups. Puts are buffered in memory and
// written in one bulk upsert per Flush.
type PostgresStore struct {
	pool pgPool

	mu      sync.Mutex
	pending map[string]Entry
}

var _ Store = (*PostgresStore)(nil)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS orgenrich_cache (
	key       TEXT PRIMARY KEY,
	payload   TEXT NOT NULL DEFAULT '',
	not_found BOOLEAN NOT NULL DEFAULT FALSE,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgres connects to databaseURL and migrates the cache table.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool. The store takes ownership.
func NewPostgresStore(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool, pending: make(map[string]Entry)}
}

// Migrate creates the cache table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate cache table")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	e, ok := s.pending[key]
	s.mu.Unlock()
	if ok {
		return e, true, nil
	}

	var (
		payload  string
		notFound bool
		storedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT payload, not_found, stored_at FROM orgenrich_cache WHERE key = $1`, key,
	).Scan(&payload, &notFound, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "postgres: get cache entry")
	}
	return entryFromColumns(payload, notFound, storedAt), true, nil
}

func (s *PostgresStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = e
	return nil
}

// Flush upserts buffered entries. On failure the buffer is kept so the next
// flush retries it.
func (s *PostgresStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		e := s.pending[k]
		rows = append(rows, []any{k, string(e.Payload), e.NotFound, e.StoredAt})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        postgresTable,
		Columns:      []string{"key", "payload", "not_found", "stored_at"},
		ConflictKeys: []string{"key"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: flush cache entries")
	}
	zap.L().Debug("postgres cache flushed", zap.Int64("rows", n))
	s.pending = make(map[string]Entry)
	return nil
}

// Len flushes buffered entries, then counts the table.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orgenrich_cache`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count cache entries")
	}
	return int(n), nil
}

// Clear flushes buffered entries, then deletes keys starting with prefix.
func (s *PostgresStore) Clear(ctx context.Context, prefix string) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orgenrich_cache WHERE key LIKE $1`, likePrefix(prefix),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear cache entries")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
