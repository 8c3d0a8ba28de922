package cost

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/pkg/anthropic"
)

// Totals is the accumulated usage of a Meter.
type Totals struct {
	Calls            int
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
	USD              float64
}

// UsageFunc observes one successful call.
type UsageFunc func(model string, u anthropic.TokenUsage, usd float64)

// Meter wraps an anthropic.Client and accumulates the tokens and USD cost of
// every successful call. Cached extractions never reach the meter.
type Meter struct {
	next    anthropic.Client
	calc    *Calculator
	onUsage UsageFunc

	mu     sync.Mutex
	totals Totals
	warned map[string]bool
}

// NewMeter wraps next. onUsage may be nil.
func NewMeter(next anthropic.Client, calc *Calculator, onUsage UsageFunc) *Meter {
	return &Meter{next: next, calc: calc, onUsage: onUsage, warned: make(map[string]bool)}
}

// CreateMessage implements anthropic.Client.
func (m *Meter) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	resp, err := m.next.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	usd := m.record(model, resp.Usage)
	if m.onUsage != nil {
		m.onUsage(model, resp.Usage, usd)
	}
	return resp, nil
}

func (m *Meter) record(model string, u anthropic.TokenUsage) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.calc.Known(model) && !m.warned[model] {
		m.warned[model] = true
		zap.L().Warn("cost: no pricing for model, spend not counted", zap.String("model", model))
	}
	usd := m.calc.Claude(model, u)
	m.totals.Calls++
	m.totals.InputTokens += u.InputTokens
	m.totals.OutputTokens += u.OutputTokens
	m.totals.CacheWriteTokens += u.CacheCreationInputTokens
	m.totals.CacheReadTokens += u.CacheReadInputTokens
	m.totals.USD += usd
	return usd
}

// Totals returns a copy of the accumulated usage. A nil Meter reports zero.
func (m *Meter) Totals() Totals {
	if m == nil {
		return Totals{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}
