package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/cache"
	"github.com/sells-group/orgenrich/internal/config"
	"github.com/sells-group/orgenrich/internal/cost"
	"github.com/sells-group/orgenrich/internal/enrich"
	"github.com/sells-group/orgenrich/internal/metrics"
	"github.com/sells-group/orgenrich/internal/resilience"
	"github.com/sells-group/orgenrich/internal/staff"
	"github.com/sells-group/orgenrich/pkg/anthropic"
	"github.com/sells-group/orgenrich/pkg/propublica"
	"github.com/sells-group/orgenrich/pkg/webfetch"
)

// runEnv holds everything one enrich run needs. It is built once per
// command and threaded through explicitly.
type runEnv struct {
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Enricher *enrich.Enricher
	Spend    *cost.Meter // nil when staff extraction is disabled
}

// Close flushes and closes the cache store.
func (e *runEnv) Close(ctx context.Context) error {
	if e.Cache == nil {
		return nil
	}
	return e.Cache.Close(ctx)
}

// initEnv opens the cache and builds clients, policies and the enricher from
// c. Callers should defer env.Close.
func initEnv(ctx context.Context, c *config.Config) (*runEnv, error) {
	m := metrics.New()

	store, err := cache.OpenStore(ctx, c.Cache.StoreConfig())
	if err != nil {
		return nil, eris.Wrap(err, "open cache store")
	}
	lc := cache.New(store, cache.Options{
		TTL:      c.Cache.TTL(),
		OnLookup: m.ObserveCacheLookup,
	})

	ppPolicy := newPolicy(c, m, "propublica", c.ProPublica.RequestsPerSecond, c.ProPublica.TimeoutSecs)
	ppClient := propublica.NewClient(
		propublica.WithBaseURL(c.ProPublica.BaseURL),
		propublica.WithUserAgent(c.ProPublica.UserAgent),
	)

	var (
		extractor *staff.Extractor
		spend     *cost.Meter
	)
	if c.Staff.Enabled {
		spend = cost.NewMeter(newAnthropic(c), cost.NewCalculator(cost.DefaultRates()),
			func(model string, u anthropic.TokenUsage, usd float64) {
				m.ObserveLLMUsage(model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens, usd)
			})
		extractor = staff.NewExtractor(
			newFetcher(c),
			spend,
			lc,
			newPolicy(c, m, "web", c.Web.RequestsPerSecond, c.Web.TimeoutSecs),
			newPolicy(c, m, "anthropic", c.Anthropic.RequestsPerSecond, c.Anthropic.TimeoutSecs),
			c.ExtractorConfig(),
		)
	} else {
		zap.L().Info("staff extraction disabled")
	}

	return &runEnv{
		Cache:    lc,
		Metrics:  m,
		Enricher: enrich.New(ppClient, ppPolicy, lc, c.Input.Fields(), extractor),
		Spend:    spend,
	}, nil
}

func newPolicy(c *config.Config, m *metrics.Metrics, service string, rps float64, timeoutSecs int) *resilience.Policy {
	pc := c.Retry.Policy(service, rps, timeoutSecs)
	pc.OnRetry = func(service string, kind resilience.Kind, attempt int, err error) {
		m.ObserveRetry(service, kind.String())
	}
	return resilience.NewPolicy(pc)
}

func newFetcher(c *config.Config) webfetch.Fetcher {
	if c.Web.Fetcher == "jina" {
		return webfetch.NewJina(c.Jina.Key,
			webfetch.WithBaseURL(c.Jina.BaseURL),
			webfetch.WithMaxBodyBytes(c.Web.MaxBodyBytes),
		)
	}
	return webfetch.NewDirect(
		webfetch.WithUserAgent(c.Web.UserAgent),
		webfetch.WithMaxBodyBytes(c.Web.MaxBodyBytes),
	)
}

func newAnthropic(c *config.Config) anthropic.Client {
	var opts []anthropic.Option
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(c.Anthropic.BaseURL))
	}
	return anthropic.NewClient(c.Anthropic.Key, opts...)
}
