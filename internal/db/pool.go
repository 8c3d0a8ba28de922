// Package db provides Postgres helpers for bulk writes.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Pool is the subset of pgxpool.Pool needed for transactional bulk writes.
// pgxmock pools satisfy it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
