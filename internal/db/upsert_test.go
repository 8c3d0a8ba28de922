package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheUpsert() UpsertConfig {
	return UpsertConfig{
		Table:        "orgenrich_cache",
		Columns:      []string{"key", "payload"},
		ConflictKeys: []string{"key"},
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, cacheUpsert(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "orgenrich_cache",
		ConflictKeys: []string{"key"},
	}, [][]any{{"k", "v"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "orgenrich_cache",
		Columns: []string{"key", "payload"},
	}, [][]any{{"k", "v"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_orgenrich_cache"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_orgenrich_cache"}, []string{"key", "payload"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "orgenrich_cache"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cacheUpsert(), [][]any{{"a", "1"}, {"b", "2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_orgenrich_cache"}, []string{"key", "payload"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, cacheUpsert(), [][]any{{"a", "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for orgenrich_cache")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err = BulkUpsert(context.Background(), mock, cacheUpsert(), [][]any{{"a", "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestMergeSQL(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "enrich.orgenrich_cache",
		Columns:      []string{"key", "payload", "stored_at"},
		ConflictKeys: []string{"key"},
	}
	assert.Equal(t,
		`INSERT INTO "enrich"."orgenrich_cache" ("key", "payload", "stored_at") SELECT "key", "payload", "stored_at" FROM "_tmp_upsert_enrich_orgenrich_cache" ON CONFLICT ("key") DO UPDATE SET "payload" = EXCLUDED."payload", "stored_at" = EXCLUDED."stored_at"`,
		cfg.mergeSQL())

	cfg.Columns = []string{"key"}
	assert.True(t, strings.HasSuffix(cfg.mergeSQL(), `ON CONFLICT ("key") DO NOTHING`))

	cfg.Columns = []string{"key", "payload", "stored_at"}
	cfg.UpdateCols = []string{"stored_at"}
	assert.True(t, strings.HasSuffix(cfg.mergeSQL(), `DO UPDATE SET "stored_at" = EXCLUDED."stored_at"`))
}

func TestCreateStagingSQL(t *testing.T) {
	assert.Equal(t,
		`CREATE TEMP TABLE "_tmp_upsert_orgenrich_cache" (LIKE "orgenrich_cache" INCLUDING DEFAULTS) ON COMMIT DROP`,
		cacheUpsert().createStagingSQL())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"orgenrich_cache", `"orgenrich_cache"`},
		{"enrich.orgenrich_cache", `"enrich"."orgenrich_cache"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"key", "payload", "stored_at"})
	assert.Equal(t, `"key", "payload", "stored_at"`, result)
}
