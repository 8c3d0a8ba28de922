// Package webfetch retrieves organization web pages as readable text, either
// directly over HTTP or through the Jina AI Reader.
package webfetch

import (
	"context"
	"net/http"
	"time"
)

// Fetcher retrieves one page per call. Errors follow the resilience
// taxonomy: 404/410 are not-found, 429 is rate-limited, 408/5xx and
// transport failures are network errors.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// Page is a fetched page reduced to text.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Option configures a fetcher.
type Option func(*options)

type options struct {
	baseURL      string
	userAgent    string
	maxBodyBytes int64
	http         *http.Client
}

// WithBaseURL sets a custom reader base URL (Jina only, for testing).
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		userAgent:    "Mozilla/5.0 (compatible; orgenrich/1.0)",
		maxBodyBytes: 2 << 20,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
