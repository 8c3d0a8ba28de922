// Package match turns opaque input records into nonprofit search queries and
// picks the matching organization from the results.
package match

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/model"
	"github.com/sells-group/orgenrich/internal/resilience"
)

// ErrNoIdentity is returned for records with neither a usable name nor EIN.
var ErrNoIdentity = eris.New("match: record has no name or EIN")

// Fields names the record keys holding identity data.
type Fields struct {
	NameFields   []string // first non-empty wins
	EINField     string
	CityField    string
	StateField   string
	WebsiteField string
}

// DefaultFields returns the conventional column names.
func DefaultFields() Fields {
	return Fields{
		NameFields:   []string{"name", "organization", "company"},
		EINField:     "ein",
		CityField:    "city",
		StateField:   "state",
		WebsiteField: "website",
	}
}

// Identity is the normalized identifying data of one record.
type Identity struct {
	Name    string // as given, trimmed
	EIN     string // nine digits or ""
	City    string // folded
	State   string // USPS code or ""
	Website string // normalized URL or ""
}

// Extract reads and normalizes identity fields from r.
func Extract(r model.Record, f Fields) Identity {
	var id Identity
	for _, k := range f.NameFields {
		if v := r.Text(k); v != "" {
			id.Name = v
			break
		}
	}
	if f.EINField != "" {
		id.EIN = NormalizeEIN(r.Text(f.EINField))
	}
	if f.CityField != "" {
		id.City = NormalizeCity(r.Text(f.CityField))
	}
	if f.StateField != "" {
		id.State = NormalizeState(r.Text(f.StateField))
	}
	if f.WebsiteField != "" {
		id.Website = NormalizeWebsite(r.Text(f.WebsiteField))
	}
	return id
}

// Query is one search to run against the nonprofit index.
type Query struct {
	Strategy model.Strategy
	Text     string
	State    string
	EIN      string // set when the record carries an EIN, for tie-breaking
}

// Key is the normalized cache key for q.
func (q Query) Key() string {
	return string(q.Strategy) + "|" + q.Text + "|" + q.State
}

// BuildQueries returns the searches for id in priority order: EIN, then name
// with location, then name alone.
func BuildQueries(id Identity) []Query {
	var qs []Query
	if id.EIN != "" {
		qs = append(qs, Query{Strategy: model.StrategyEIN, Text: id.EIN, EIN: id.EIN})
	}

	name := NormalizeName(id.Name)
	if name == "" {
		return qs
	}
	switch {
	case id.State != "":
		qs = append(qs, Query{Strategy: model.StrategyNameLocation, Text: name, State: id.State, EIN: id.EIN})
	case id.City != "":
		qs = append(qs, Query{Strategy: model.StrategyNameLocation, Text: name + " " + id.City, EIN: id.EIN})
	}
	qs = append(qs, Query{Strategy: model.StrategyName, Text: name, EIN: id.EIN})
	return qs
}

// Select picks the candidate whose EIN equals q.EIN, else the first. Returns
// nil only when there are no candidates.
func Select(q Query, candidates []model.MatchCandidate) *model.MatchCandidate {
	if q.EIN != "" {
		for i := range candidates {
			if NormalizeEIN(candidates[i].EIN) == q.EIN {
				c := candidates[i]
				c.Strategy = q.Strategy
				return &c
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	c.Strategy = q.Strategy
	return &c
}

// Searcher runs one query. A query without results fails with a not-found
// error.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]model.MatchCandidate, error)
}

// Resolver resolves records to nonprofit matches.
type Resolver struct {
	searcher Searcher
	fields   Fields
}

// NewResolver creates a Resolver reading identity from fields.
func NewResolver(s Searcher, fields Fields) *Resolver {
	return &Resolver{searcher: s, fields: fields}
}

// Fields returns the record keys the resolver reads.
func (r *Resolver) Fields() Fields {
	return r.fields
}

// Resolve tries each query for rec in priority order and returns the first
// match. It returns nil, nil when every query came back empty and
// ErrNoIdentity when there was nothing to search with. Any other search error
// is returned as is.
func (r *Resolver) Resolve(ctx context.Context, rec model.Record) (*model.MatchCandidate, error) {
	id := Extract(rec, r.fields)
	queries := BuildQueries(id)
	if len(queries) == 0 {
		return nil, ErrNoIdentity
	}

	for _, q := range queries {
		candidates, err := r.searcher.Search(ctx, q)
		if resilience.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m := Select(q, candidates); m != nil {
			zap.L().Debug("match resolved",
				zap.String("strategy", string(q.Strategy)),
				zap.String("query", q.Text),
				zap.String("ein", m.EIN),
			)
			return m, nil
		}
	}
	return nil, nil
}

// Label is a short human-readable identity for logs.
func (id Identity) Label() string {
	parts := []string{}
	if id.Name != "" {
		parts = append(parts, id.Name)
	}
	if id.EIN != "" {
		parts = append(parts, "ein="+id.EIN)
	}
	if id.State != "" {
		parts = append(parts, id.State)
	}
	return strings.Join(parts, " ")
}
