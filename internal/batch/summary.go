package batch

import (
	"time"

	"github.com/sells-group/orgenrich/internal/model"
)

// Summary counts record outcomes for a run. Records carried over from a
// resumed snapshot are included.
type Summary struct {
	RunID     string
	State     State
	Total     int
	Processed int
	Resumed   int // records already committed when the run started

	Enriched     int
	NotFound     int
	NoIdentity   int
	RateLimited  int
	NetworkError int
	Errored      int

	Duration time.Duration
}

// Add counts one record outcome.
func (s *Summary) Add(status model.Status, reason model.Reason) {
	s.Processed++
	switch status {
	case model.StatusEnriched:
		s.Enriched++
	case model.StatusUnenriched:
		switch reason {
		case model.ReasonNotFound:
			s.NotFound++
		case model.ReasonNoIdentity:
			s.NoIdentity++
		case model.ReasonRateLimited:
			s.RateLimited++
		case model.ReasonNetworkError:
			s.NetworkError++
		default:
			s.Errored++
		}
	default:
		s.Errored++
	}
}

// Failed is the number of records that could not be looked up because of a
// transient or client error.
func (s Summary) Failed() int {
	return s.RateLimited + s.NetworkError + s.Errored
}

// Summarize counts the enrichment statuses stored under key in records.
func Summarize(records []model.Record, key string) Summary {
	var s Summary
	for _, r := range records {
		s.Add(model.StatusOf(r, key))
	}
	return s
}
