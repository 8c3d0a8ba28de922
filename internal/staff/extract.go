// Package staff extracts staff and leadership listings from organization
// websites with an LLM.
package staff

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/cache"
	"github.com/sells-group/orgenrich/internal/model"
	"github.com/sells-group/orgenrich/internal/resilience"
	"github.com/sells-group/orgenrich/pkg/anthropic"
	"github.com/sells-group/orgenrich/pkg/webfetch"
)

// Op is the cache operation name for per-page extractions.
const Op = "staff.extract"

// promptVersion is part of every cache key; bump it when the prompt changes
// so stale extractions are not reused.
const promptVersion = "v1"

const systemPrompt = `You extract staff listings from nonprofit web pages.
Return ONLY a JSON array. Each element is an object with the keys "name", "title", "email" and "phone".
Include employees, executives and board members named on the page. Use "" for unknown fields.
Never invent people or contact details. If the page lists nobody, return [].`

// Config tunes extraction.
type Config struct {
	// Paths are appended to the website root, in order; "" is the root.
	Paths     []string
	MaxChars  int
	Model     string
	MaxTokens int64
}

// DefaultConfig returns the stock paths and model settings.
func DefaultConfig() Config {
	return Config{
		Paths:     []string{"", "/about", "/staff", "/team", "/leadership"},
		MaxChars:  40000,
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 2048,
	}
}

// Result is a successful extraction.
type Result struct {
	Staff     []model.StaffMember `json:"staff"`
	SourceURL string              `json:"source_url"`
}

// Extractor fetches candidate pages and asks the model for the people listed
// on them. Fetches and model calls go through their policies; per-page
// results are cached.
type Extractor struct {
	fetcher webfetch.Fetcher
	ai      anthropic.Client
	cache   *cache.Cache
	webPol  *resilience.Policy
	aiPol   *resilience.Policy
	cfg     Config
}

// NewExtractor creates an Extractor.
func NewExtractor(f webfetch.Fetcher, ai anthropic.Client, c *cache.Cache, webPolicy, aiPolicy *resilience.Policy, cfg Config) *Extractor {
	def := DefaultConfig()
	if len(cfg.Paths) == 0 {
		cfg.Paths = def.Paths
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Extractor{fetcher: f, ai: ai, cache: c, webPol: webPolicy, aiPol: aiPolicy, cfg: cfg}
}

// CandidateURLs joins website with each configured path, dropping duplicates.
func CandidateURLs(website string, paths []string) []string {
	base := strings.TrimRight(website, "/")
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" && !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		u := base + strings.TrimRight(p, "/")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Extract returns the staff of the first candidate page that lists anyone.
// It fails with a not-found error when no page does. Transient, persistence
// and cancellation errors stop the walk and are returned; other per-page
// failures are remembered and returned only if no page succeeds.
func (e *Extractor) Extract(ctx context.Context, website string) (*Result, error) {
	var lastErr error
	for _, u := range CandidateURLs(website, e.cfg.Paths) {
		key := cache.Key{Op: Op, Query: u + "|" + promptVersion}
		res, found, err := cache.Fetch(ctx, e.cache, key, func(ctx context.Context) (Result, error) {
			return e.extractPage(ctx, u)
		})
		switch {
		case err == nil && found:
			return &res, nil
		case err == nil:
			continue
		case ctx.Err() != nil || resilience.IsPersistence(err):
			return nil, err
		}

		switch resilience.KindOf(err) {
		case resilience.KindRateLimited, resilience.KindNetwork:
			return nil, err
		}
		zap.L().Debug("staff page failed", zap.String("url", u), zap.Error(err))
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, resilience.NotFound(Op)
}

func (e *Extractor) extractPage(ctx context.Context, pageURL string) (Result, error) {
	page, err := resilience.Call(ctx, e.webPol, func(ctx context.Context) (*webfetch.Page, error) {
		return e.fetcher.Fetch(ctx, pageURL)
	})
	if err != nil {
		return Result{}, err
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Page: %s\nTitle: %s\n\n%s", page.URL, page.Title, truncateRunes(page.Text, e.cfg.MaxChars)),
		}},
	}
	resp, err := resilience.Call(ctx, e.aiPol, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.ai.CreateMessage(ctx, req)
	})
	if err != nil {
		return Result{}, err
	}

	members, err := ParseResponse(resp.Text())
	if err != nil {
		return Result{}, err
	}
	if len(members) == 0 {
		return Result{}, resilience.NotFound(Op)
	}
	zap.L().Debug("staff extracted", zap.String("url", page.URL), zap.Int("members", len(members)))
	return Result{Staff: members, SourceURL: page.URL}, nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
