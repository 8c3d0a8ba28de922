package webfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orgenrich/internal/resilience"
)

func TestJinaFetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://acme.org/team", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"title":   "Team",
				"url":     "https://acme.org/team",
				"content": "# Team\n\nJane Doe, CEO",
			},
		})
	}))
	defer srv.Close()

	page, err := NewJina("test-key", WithBaseURL(srv.URL)).Fetch(context.Background(), "https://acme.org/team")
	require.NoError(t, err)
	assert.Equal(t, "Team", page.Title)
	assert.Equal(t, "https://acme.org/team", page.URL)
	assert.Equal(t, "# Team\n\nJane Doe, CEO", page.Text)
}

func TestJinaFetch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   resilience.Kind
	}{
		{"unloadable target", http.StatusUnprocessableEntity, `{}`, resilience.KindNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, resilience.KindRateLimited},
		{"server error", http.StatusInternalServerError, `internal error`, resilience.KindNetwork},
		{"empty content", http.StatusOK, `{"code":200,"data":{"content":"  "}}`, resilience.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewJina("k", WithBaseURL(srv.URL)).Fetch(context.Background(), "https://acme.org")
			require.Error(t, err)
			assert.Equal(t, tt.want, resilience.KindOf(err))
		})
	}
}
