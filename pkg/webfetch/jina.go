package webfetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/resilience"
)

const jinaOp = "jina.read"

// jinaReadResponse is the parsed Jina Reader response.
type jinaReadResponse struct {
	Code int          `json:"code"`
	Data jinaReadData `json:"data"`
}

type jinaReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Usage   struct {
		Tokens int `json:"tokens"`
	} `json:"usage"`
}

type jinaFetcher struct {
	apiKey string
	opts   options
}

// NewJina returns a Fetcher backed by the Jina AI Reader, which renders the
// page remotely and returns markdown.
func NewJina(apiKey string, opts ...Option) Fetcher {
	o := buildOptions(opts)
	if o.baseURL == "" {
		o.baseURL = "https://r.jina.ai"
	}
	return &jinaFetcher{apiKey: apiKey, opts: o}
}

func (f *jinaFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(f.opts.baseURL, "/")+"/"+pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")

	resp, err := f.opts.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "jina: request failed")
		}
		return nil, resilience.Network(jinaOp, 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.maxBodyBytes))
	if err != nil {
		return nil, resilience.Network(jinaOp, resp.StatusCode, eris.Wrap(err, "jina: read response body"))
	}

	// Jina answers 422 when it cannot load the target page.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, resilience.NotFound(jinaOp)
	}
	if err := resilience.FromHTTPStatus(jinaOp, resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}

	var result jinaReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	text := strings.TrimSpace(result.Data.Content)
	if text == "" {
		return nil, resilience.NotFound(jinaOp)
	}
	u := result.Data.URL
	if u == "" {
		u = pageURL
	}
	return &Page{URL: u, Title: result.Data.Title, Text: text}, nil
}
