// Package propublica provides a client for the ProPublica Nonprofit Explorer
// API v2.
package propublica

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/resilience"
)

const defaultBaseURL = "https://projects.propublica.org/nonprofits/api/v2"

// Client defines the Nonprofit Explorer operations.
type Client interface {
	// Search runs a full-text organization search. A 404 or an empty result
	// set is reported as a not-found error.
	Search(ctx context.Context, params SearchParams) (*SearchResponse, error)
	// Organization returns the organization profile and its filings.
	Organization(ctx context.Context, ein string) (*OrganizationResponse, error)
}

// SearchParams are the supported search filters.
type SearchParams struct {
	Query string
	State string // two-letter USPS code
	Page  int
}

// SearchResponse is the parsed /search.json response.
type SearchResponse struct {
	TotalResults  int                  `json:"total_results"`
	NumPages      int                  `json:"num_pages"`
	CurPage       int                  `json:"cur_page"`
	Organizations []SearchOrganization `json:"organizations"`
}

// SearchOrganization is one search hit.
type SearchOrganization struct {
	EIN            int64   `json:"ein"`
	StrEIN         string  `json:"strein"`
	Name           string  `json:"name"`
	SubName        string  `json:"sub_name"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	NTEECode       string  `json:"ntee_code"`
	SubsectionCode int     `json:"subseccd"`
	Score          float64 `json:"score"`
}

// OrganizationResponse is the parsed /organizations/{ein}.json response.
type OrganizationResponse struct {
	Organization       Organization `json:"organization"`
	FilingsWithData    []Filing     `json:"filings_with_data"`
	FilingsWithoutData []Filing     `json:"filings_without_data"`
}

// Organization is the IRS business master file profile.
type Organization struct {
	EIN            int64   `json:"ein"`
	Name           string  `json:"name"`
	CareOfName     string  `json:"careofname"`
	Address        string  `json:"address"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	Zipcode        string  `json:"zipcode"`
	SubsectionCode int     `json:"subsection_code"`
	NTEECode       string  `json:"ntee_code"`
	RulingDate     string  `json:"ruling_date"`
	IncomeAmount   float64 `json:"income_amount"`
	RevenueAmount  float64 `json:"revenue_amount"`
	AssetAmount    float64 `json:"asset_amount"`
}

// Filing is one Form 990 filing summary.
type Filing struct {
	TaxPeriod        int     `json:"tax_prd"`
	TaxYear          int     `json:"tax_prd_yr"`
	FormType         int     `json:"formtype"`
	PDFURL           string  `json:"pdf_url"`
	TotalRevenue     float64 `json:"totrevenue"`
	TotalExpenses    float64 `json:"totfuncexpns"`
	TotalAssets      float64 `json:"totassetsend"`
	TotalLiabilities float64 `json:"totliabend"`
}

// FormatEIN renders a numeric EIN as nine digits.
func FormatEIN(ein int64) string {
	return fmt.Sprintf("%09d", ein)
}

// Option configures the ProPublica client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a new Nonprofit Explorer client. The client makes exactly
// one request per call; retrying belongs to the caller.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "orgenrich/1.0",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	const op = "propublica.search"

	q := url.Values{}
	q.Set("q", params.Query)
	if params.State != "" {
		q.Set("state[id]", params.State)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}

	var result SearchResponse
	if err := c.getJSON(ctx, op, c.baseURL+"/search.json?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if len(result.Organizations) == 0 {
		return nil, resilience.NotFound(op)
	}
	return &result, nil
}

func (c *httpClient) Organization(ctx context.Context, ein string) (*OrganizationResponse, error) {
	const op = "propublica.org"

	var result OrganizationResponse
	if err := c.getJSON(ctx, op, c.baseURL+"/organizations/"+url.PathEscape(ein)+".json", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) getJSON(ctx context.Context, op, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: create request", op)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrapf(err, "%s: request", op)
		}
		return resilience.Network(op, 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.Network(op, resp.StatusCode, eris.Wrapf(err, "%s: read response body", op))
	}
	if err := resilience.FromHTTPStatus(op, resp.StatusCode, resp.Header, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: unmarshal response", op)
	}
	return nil
}
