// Package enrich produces the enrichment result for one record: nonprofit
// match, organization profile and website staff.
package enrich

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/cache"
	"github.com/sells-group/orgenrich/internal/match"
	"github.com/sells-group/orgenrich/internal/model"
	"github.com/sells-group/orgenrich/internal/resilience"
	"github.com/sells-group/orgenrich/internal/staff"
	"github.com/sells-group/orgenrich/pkg/propublica"
)

// Enricher enriches records one at a time.
type Enricher struct {
	client   propublica.Client
	policy   *resilience.Policy
	cache    *cache.Cache
	resolver *match.Resolver
	staff    *staff.Extractor
}

// New creates an Enricher. A nil extractor disables staff lookups.
func New(client propublica.Client, policy *resilience.Policy, c *cache.Cache, fields match.Fields, extractor *staff.Extractor) *Enricher {
	e := &Enricher{
		client: client,
		policy: policy,
		cache:  c,
		staff:  extractor,
	}
	e.resolver = match.NewResolver(&searcher{client: client, policy: policy, cache: c}, fields)
	return e
}

// Enrich returns the result for rec. Per-record failures (not found,
// exhausted retries, unclassified client errors) come back as an unenriched
// result with a nil error. A non-nil error means the run must stop:
// cancellation or a persistence failure.
func (e *Enricher) Enrich(ctx context.Context, rec model.Record) (model.EnrichmentResult, error) {
	m, err := e.resolver.Resolve(ctx, rec)
	switch {
	case errors.Is(err, match.ErrNoIdentity):
		return model.Unenriched(model.ReasonNoIdentity), nil
	case err != nil:
		if fatal(ctx, err) {
			return model.EnrichmentResult{}, err
		}
		e.logDegraded(rec, "search", err)
		return model.Unenriched(ReasonFor(err)), nil
	case m == nil:
		return model.Unenriched(model.ReasonNotFound), nil
	}

	res := model.EnrichmentResult{Status: model.StatusEnriched, Match: m}

	org, found, err := e.organization(ctx, m.EIN)
	switch {
	case err != nil:
		if fatal(ctx, err) {
			return model.EnrichmentResult{}, err
		}
		e.logDegraded(rec, "organization", err)
		return model.Unenriched(ReasonFor(err)), nil
	case found:
		res.Organization = org
	}

	if e.staff == nil {
		return res, nil
	}
	website := match.Extract(rec, e.resolver.Fields()).Website
	if website == "" {
		res.StaffReason = model.ReasonNotFound
		return res, nil
	}
	sr, err := e.staff.Extract(ctx, website)
	if err != nil {
		if fatal(ctx, err) {
			return model.EnrichmentResult{}, err
		}
		if !resilience.IsNotFound(err) {
			e.logDegraded(rec, "staff", err)
		}
		res.StaffReason = ReasonFor(err)
		return res, nil
	}
	res.Staff = sr.Staff
	res.SourceURL = sr.SourceURL
	return res, nil
}

// ReasonFor maps an error to the reason recorded on the result.
func ReasonFor(err error) model.Reason {
	switch resilience.KindOf(err) {
	case resilience.KindNotFound:
		return model.ReasonNotFound
	case resilience.KindRateLimited:
		return model.ReasonRateLimited
	case resilience.KindNetwork:
		return model.ReasonNetworkError
	default:
		return model.ReasonError
	}
}

// fatal reports whether err must abort the run rather than mark the record.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || resilience.IsCanceled(err) || resilience.IsPersistence(err)
}

func (e *Enricher) logDegraded(rec model.Record, stage string, err error) {
	zap.L().Warn("enrichment degraded",
		zap.String("stage", stage),
		zap.String("record", match.Extract(rec, e.resolver.Fields()).Label()),
		zap.String("reason", string(ReasonFor(err))),
		zap.Error(err),
	)
}
