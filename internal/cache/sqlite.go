package cache

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Writes go straight
// to the database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key       TEXT PRIMARY KEY,
	payload   TEXT NOT NULL DEFAULT '',
	not_found INTEGER NOT NULL DEFAULT 0,
	stored_at INTEGER NOT NULL
);
`

// OpenSQLite opens (and migrates) a SQLite cache database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; avoids SQLITE_BUSY with in-memory and file databases alike.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		payload  string
		notFound int
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, not_found, stored_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &notFound, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "sqlite: get cache entry")
	}
	return entryFromColumns(payload, notFound != 0, time.Unix(0, storedAt)), true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, e Entry) error {
	notFound := 0
	if e.NotFound {
		notFound = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, not_found, stored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			not_found = excluded.not_found,
			stored_at = excluded.stored_at`,
		key, string(e.Payload), notFound, e.StoredAt.UnixNano(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: put cache entry")
	}
	return nil
}

func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count cache entries")
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear cache entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// likePrefix escapes LIKE metacharacters in prefix and appends a wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func entryFromColumns(payload string, notFound bool, storedAt time.Time) Entry {
	e := Entry{NotFound: notFound, StoredAt: storedAt.UTC()}
	if payload != "" {
		e.Payload = []byte(payload)
	}
	return e
}
