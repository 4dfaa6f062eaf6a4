package observability

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/trace"
)

// Stats summarizes the step invocations an Aggregator has seen.
type Stats struct {
	Count         int           `json:"count"`
	Successes     int           `json:"successes"`
	Errors        int           `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	SuccessRate   float64       `json:"success_rate"`
}

// Aggregator collects finished step records across runs.
// It is safe for concurrent use by several executions.
type Aggregator struct {
	mu      sync.Mutex
	records []domain.StepRecord
	limit   int
}

var _ trace.Observer = (*Aggregator)(nil)

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLimit keeps only the most recent n records. Zero keeps all of them.
func WithLimit(n int) AggregatorOption {
	return func(a *Aggregator) { a.limit = n }
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) StepStarted(context.Context, domain.StepRecord) error { return nil }

func (a *Aggregator) StepFinished(_ context.Context, rec domain.StepRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	if a.limit > 0 && len(a.records) > a.limit {
		a.records = slices.Delete(a.records, 0, len(a.records)-a.limit)
	}
	return nil
}

// Stats returns the summary of all collected records.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Stats
	for _, rec := range a.records {
		s.Count++
		s.TotalDuration += rec.Duration
		if rec.Failed() {
			s.Errors++
		} else {
			s.Successes++
		}
	}
	if s.Count > 0 {
		s.AvgDuration = s.TotalDuration / time.Duration(s.Count)
		s.SuccessRate = float64(s.Successes) / float64(s.Count)
	}
	return s
}

// ByNode returns per-node statistics keyed by node name.
func (a *Aggregator) ByNode() map[string]Stats {
	a.mu.Lock()
	groups := make(map[string][]domain.StepRecord)
	for _, rec := range a.records {
		groups[rec.Node] = append(groups[rec.Node], rec)
	}
	a.mu.Unlock()

	out := make(map[string]Stats, len(groups))
	for node, recs := range groups {
		sub := &Aggregator{records: recs}
		out[node] = sub.Stats()
	}
	return out
}

// Slowest returns up to n records ordered by descending duration.
func (a *Aggregator) Slowest(n int) []domain.StepRecord {
	a.mu.Lock()
	sorted := slices.Clone(a.records)
	a.mu.Unlock()

	slices.SortStableFunc(sorted, func(x, y domain.StepRecord) int {
		switch {
		case x.Duration > y.Duration:
			return -1
		case x.Duration < y.Duration:
			return 1
		}
		return 0
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Records returns a copy of the collected records in arrival order.
func (a *Aggregator) Records() []domain.StepRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.records)
}

// Reset drops every collected record.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
}
