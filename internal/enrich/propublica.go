package enrich

import (
	"context"

	"github.com/sells-group/orgenrich/internal/cache"
	"github.com/sells-group/orgenrich/internal/match"
	"github.com/sells-group/orgenrich/internal/model"
	"github.com/sells-group/orgenrich/internal/resilience"
	"github.com/sells-group/orgenrich/pkg/propublica"
)

// Cache operation names.
const (
	OpSearch       = "propublica.search"
	OpOrganization = "propublica.org"
)

// searcher adapts the ProPublica client to match.Searcher, with caching and
// the ProPublica policy applied.
type searcher struct {
	client propublica.Client
	policy *resilience.Policy
	cache  *cache.Cache
}

var _ match.Searcher = (*searcher)(nil)

func (s *searcher) Search(ctx context.Context, q match.Query) ([]model.MatchCandidate, error) {
	cands, found, err := cache.Fetch(ctx, s.cache, cache.Key{Op: OpSearch, Query: q.Key()},
		func(ctx context.Context) ([]model.MatchCandidate, error) {
			resp, err := resilience.Call(ctx, s.policy, func(ctx context.Context) (*propublica.SearchResponse, error) {
				return s.client.Search(ctx, propublica.SearchParams{Query: q.Text, State: q.State})
			})
			if err != nil {
				return nil, err
			}
			return toCandidates(resp), nil
		})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, resilience.NotFound(OpSearch)
	}
	return cands, nil
}

// organization fetches the filing profile for ein. found is false when
// ProPublica has no profile.
func (e *Enricher) organization(ctx context.Context, ein string) (*model.Organization, bool, error) {
	org, found, err := cache.Fetch(ctx, e.cache, cache.Key{Op: OpOrganization, Query: ein},
		func(ctx context.Context) (model.Organization, error) {
			resp, err := resilience.Call(ctx, e.policy, func(ctx context.Context) (*propublica.OrganizationResponse, error) {
				return e.client.Organization(ctx, ein)
			})
			if err != nil {
				return model.Organization{}, err
			}
			return toOrganization(resp), nil
		})
	if err != nil || !found {
		return nil, false, err
	}
	return &org, true, nil
}

func toCandidates(resp *propublica.SearchResponse) []model.MatchCandidate {
	out := make([]model.MatchCandidate, 0, len(resp.Organizations))
	for _, o := range resp.Organizations {
		out = append(out, model.MatchCandidate{
			EIN:            propublica.FormatEIN(o.EIN),
			Name:           o.Name,
			SubName:        o.SubName,
			City:           o.City,
			State:          o.State,
			NTEECode:       o.NTEECode,
			SubsectionCode: o.SubsectionCode,
		})
	}
	return out
}

func toOrganization(resp *propublica.OrganizationResponse) model.Organization {
	o := resp.Organization
	org := model.Organization{
		EIN:            propublica.FormatEIN(o.EIN),
		Name:           o.Name,
		CareOf:         o.CareOfName,
		Address:        o.Address,
		City:           o.City,
		State:          o.State,
		Zipcode:        o.Zipcode,
		NTEECode:       o.NTEECode,
		SubsectionCode: o.SubsectionCode,
		RulingDate:     o.RulingDate,
		RevenueAmount:  o.RevenueAmount,
		IncomeAmount:   o.IncomeAmount,
		AssetAmount:    o.AssetAmount,
	}

	var latest *propublica.Filing
	for i := range resp.FilingsWithData {
		f := &resp.FilingsWithData[i]
		if latest == nil || f.TaxPeriod > latest.TaxPeriod {
			latest = f
		}
	}
	if latest != nil {
		org.LatestFiling = &model.Filing{
			TaxPeriod:        latest.TaxPeriod,
			TaxYear:          latest.TaxYear,
			FormType:         latest.FormType,
			PDFURL:           latest.PDFURL,
			TotalRevenue:     latest.TotalRevenue,
			TotalExpenses:    latest.TotalExpenses,
			TotalAssets:      latest.TotalAssets,
			TotalLiabilities: latest.TotalLiabilities,
		}
	}
	return org
}
