package propublica

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orgenrich/internal/resilience"
)

const searchBody = `{
  "total_results": 2,
  "num_pages": 1,
  "cur_page": 0,
  "organizations": [
    {"ein": 42123456, "strein": "04-2123456", "name": "FOOD BANK OF IOWA", "sub_name": "", "city": "DES MOINES", "state": "IA", "ntee_code": "K31", "subseccd": 3, "score": 91.2},
    {"ein": 421999999, "strein": "42-1999999", "name": "IOWA FOOD COALITION", "city": "AMES", "state": "IA", "ntee_code": "K30", "subseccd": 3}
  ]
}`

const orgBody = `{
  "organization": {
    "ein": 42123456, "name": "FOOD BANK OF IOWA", "careofname": "% JANE DOE",
    "address": "2220 E 17TH ST", "city": "DES MOINES", "state": "IA", "zipcode": "50316-2000",
    "subsection_code": 3, "ntee_code": "K31", "ruling_date": "1983-06-01",
    "income_amount": 81234567, "revenue_amount": 80123456, "asset_amount": 30123456
  },
  "filings_with_data": [
    {"tax_prd": 202306, "tax_prd_yr": 2022, "formtype": 0, "pdf_url": "https://example.org/990.pdf",
     "totrevenue": 80123456, "totfuncexpns": 79000000, "totassetsend": 30123456, "totliabend": 5000000}
  ],
  "filings_without_data": []
}`

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "food bank", r.URL.Query().Get("q"))
		assert.Equal(t, "IA", r.URL.Query().Get("state[id]"))
		assert.Equal(t, "orgenrich-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithUserAgent("orgenrich-test"))
	got, err := c.Search(context.Background(), SearchParams{Query: "food bank", State: "IA"})
	require.NoError(t, err)
	require.Len(t, got.Organizations, 2)
	assert.Equal(t, int64(42123456), got.Organizations[0].EIN)
	assert.Equal(t, "042123456", FormatEIN(got.Organizations[0].EIN))
	assert.Equal(t, "K31", got.Organizations[0].NTEECode)
	assert.Equal(t, 3, got.Organizations[0].SubsectionCode)
}

func TestSearch_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"error":"not found"}`},
		{"empty result set", http.StatusOK, `{"total_results":0,"organizations":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), SearchParams{Query: "nothing"})
			require.Error(t, err)
			assert.True(t, resilience.IsNotFound(err))
		})
	}
}

func TestSearch_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), SearchParams{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, resilience.KindRateLimited, resilience.KindOf(err))

	var rerr *resilience.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 7*time.Second, rerr.RetryAfter)
}

func TestSearch_ServerErrorIsNetwork(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), SearchParams{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, resilience.KindNetwork, resilience.KindOf(err))
}

func TestSearch_TransportErrorIsNetwork(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), SearchParams{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, resilience.KindNetwork, resilience.KindOf(err))
}

func TestOrganization_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/042123456.json", r.URL.Path)
		_, _ = w.Write([]byte(orgBody))
	}))
	defer srv.Close()

	got, err := NewClient(WithBaseURL(srv.URL)).Organization(context.Background(), "042123456")
	require.NoError(t, err)
	assert.Equal(t, "FOOD BANK OF IOWA", got.Organization.Name)
	assert.Equal(t, "50316-2000", got.Organization.Zipcode)
	assert.InDelta(t, 80123456, got.Organization.RevenueAmount, 0.5)
	require.Len(t, got.FilingsWithData, 1)
	assert.Equal(t, 2022, got.FilingsWithData[0].TaxYear)
	assert.InDelta(t, 5000000, got.FilingsWithData[0].TotalLiabilities, 0.5)
}

func TestOrganization_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Organization(context.Background(), "000000001")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
}

func TestOrganization_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organization":`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Organization(context.Background(), "123456789")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
	assert.Equal(t, resilience.KindUnknown, resilience.KindOf(err))
}
