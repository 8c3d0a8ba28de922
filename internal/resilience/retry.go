// Package resilience classifies external-call failures and wraps calls in a
// rate-limited retry policy.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PolicyConfig controls spacing, timeouts and retries for one external service.
type PolicyConfig struct {
	// Service names the wrapped client in logs and metrics.
	Service string

	// RequestsPerSecond bounds call frequency. <= 0 disables limiting.
	RequestsPerSecond float64

	// Timeout bounds each individual attempt. Default: 15s.
	Timeout time.Duration

	// RateLimitAttempts is the total number of attempts (including the first)
	// while the service keeps answering RateLimited. Default: 3.
	RateLimitAttempts int

	// RateLimitBackoff is the base delay, doubled per RateLimited attempt.
	// Default: 2s.
	RateLimitBackoff time.Duration

	// RateLimitMaxBackoff caps the RateLimited delay. Default: 60s.
	RateLimitMaxBackoff time.Duration

	// NetworkRetries is how many times a NetworkError is retried.
	NetworkRetries int

	// NetworkDelay is the fixed delay between NetworkError retries. Default: 1s.
	NetworkDelay time.Duration

	// JitterFraction adds +/- jitter to RateLimited backoff (0.1 = 10%).
	JitterFraction float64

	// OnRetry is called before each retry sleep.
	OnRetry func(service string, kind Kind, attempt int, err error)
}

// DefaultPolicyConfig returns the documented defaults for service.
func DefaultPolicyConfig(service string) PolicyConfig {
	return PolicyConfig{
		Service:             service,
		RequestsPerSecond:   1,
		Timeout:             15 * time.Second,
		RateLimitAttempts:   3,
		RateLimitBackoff:    2 * time.Second,
		RateLimitMaxBackoff: 60 * time.Second,
		NetworkRetries:      2,
		NetworkDelay:        time.Second,
		JitterFraction:      0.1,
	}
}

func (c PolicyConfig) withDefaults() PolicyConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RateLimitAttempts <= 0 {
		c.RateLimitAttempts = 3
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 2 * time.Second
	}
	if c.RateLimitMaxBackoff <= 0 {
		c.RateLimitMaxBackoff = 60 * time.Second
	}
	if c.NetworkRetries < 0 {
		c.NetworkRetries = 0
	}
	if c.NetworkDelay <= 0 {
		c.NetworkDelay = time.Second
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}

// Policy serializes calls to one service through a token bucket and retries
// transient failures. A Policy is safe for concurrent use, but the batch
// driver only ever has one call outstanding.
type Policy struct {
	cfg     PolicyConfig
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPolicy builds a Policy from cfg.
func NewPolicy(cfg PolicyConfig) *Policy {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Policy{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepCtx,
	}
}

// Config returns the effective configuration.
func (p *Policy) Config() PolicyConfig {
	return p.cfg
}

// Do runs fn under the policy. The returned error keeps the classification of
// the last attempt, so callers can tell an exhausted RateLimited failure from
// an exhausted NetworkError with KindOf.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under p and returns its value.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var rateLimited, network int

	for attempt := 1; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "%s: rate limiter wait", p.cfg.Service)
		}

		val, err := attemptOnce(ctx, p, fn)
		if err == nil {
			return val, nil
		}

		// Cancellation of the run is never retried.
		if ctx.Err() != nil {
			return zero, eris.Wrapf(ctx.Err(), "%s: %v", p.cfg.Service, err)
		}

		kind := KindOf(err)
		var delay time.Duration
		switch kind {
		case KindRateLimited:
			rateLimited++
			if rateLimited >= p.cfg.RateLimitAttempts {
				return zero, eris.Wrapf(err, "%s: gave up after %d rate-limited attempts", p.cfg.Service, rateLimited)
			}
			delay = p.rateLimitDelay(rateLimited, retryAfter(err))
		case KindNetwork:
			network++
			if network > p.cfg.NetworkRetries {
				return zero, eris.Wrapf(err, "%s: gave up after %d network retries", p.cfg.Service, network-1)
			}
			delay = p.cfg.NetworkDelay
		default:
			return zero, err
		}

		if p.cfg.OnRetry != nil {
			p.cfg.OnRetry(p.cfg.Service, kind, attempt, err)
		}
		zap.L().Warn("retrying external call",
			zap.String("service", p.cfg.Service),
			zap.String("kind", kind.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := p.sleep(ctx, delay); err != nil {
			return zero, eris.Wrapf(err, "%s: retry wait", p.cfg.Service)
		}
	}
}

// attemptOnce runs one call bounded by the per-call timeout. A timeout of the
// attempt itself is reported as a NetworkError.
func attemptOnce[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	val, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && callCtx.Err() != nil && KindOf(err) == KindUnknown {
		err = Network(p.cfg.Service, 0, err)
	}
	return val, err
}

// rateLimitDelay computes base * 2^(n-1), capped, jittered, and never
// shorter than the server's Retry-After.
func (p *Policy) rateLimitDelay(n int, serverDelay time.Duration) time.Duration {
	delay := float64(p.cfg.RateLimitBackoff) * math.Pow(2, float64(n-1))
	if delay > float64(p.cfg.RateLimitMaxBackoff) {
		delay = float64(p.cfg.RateLimitMaxBackoff)
	}
	if p.cfg.JitterFraction > 0 {
		jitterRange := delay * p.cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	d := time.Duration(delay)
	if serverDelay > d {
		d = serverDelay
	}
	if d > p.cfg.RateLimitMaxBackoff {
		d = p.cfg.RateLimitMaxBackoff
	}
	if d < 0 {
		d = 0
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
