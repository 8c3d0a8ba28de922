package webfetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/resilience"
)

const directOp = "web.fetch"

type directFetcher struct {
	opts options
}

// NewDirect returns a Fetcher that downloads pages itself and converts HTML
// to text locally.
func NewDirect(opts ...Option) Fetcher {
	return &directFetcher{opts: buildOptions(opts)}
}

func (f *directFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "webfetch: create request %s", pageURL)
	}
	req.Header.Set("User-Agent", f.opts.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.opts.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrapf(err, "webfetch: get %s", pageURL)
		}
		return nil, resilience.Network(directOp, 0, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.maxBodyBytes))
	if err != nil {
		return nil, resilience.Network(directOp, resp.StatusCode, eris.Wrap(err, "webfetch: read response body"))
	}
	if err := resilience.FromHTTPStatus(directOp, resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}

	page := &Page{URL: resp.Request.URL.String()}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/plain" || mediaType == "text/markdown":
		page.Text = strings.TrimSpace(string(body))
	case mediaType == "" || strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xml"):
		title, text, err := HTMLToText(string(body))
		if err != nil {
			return nil, eris.Wrapf(err, "webfetch: parse %s", pageURL)
		}
		page.Title, page.Text = title, text
	default:
		return nil, eris.Errorf("webfetch: unsupported content type %q at %s", mediaType, pageURL)
	}
	if page.Text == "" {
		return nil, resilience.NotFound(directOp)
	}
	return page, nil
}
