package trace

import (
	"context"
	"maps"
	"sync"
)

type metricsKey struct{}

// Metrics collects the values a step reports during one invocation.
type Metrics struct {
	mu     sync.Mutex
	values map[string]any
}

// WithMetrics returns a context that collects reported metrics into m.
func WithMetrics(ctx context.Context, m *Metrics) context.Context {
	return context.WithValue(ctx, metricsKey{}, m)
}

// Report records a metric for the step currently running under ctx.
// Outside a step it is a no-op.
func Report(ctx context.Context, key string, value any) {
	m, ok := ctx.Value(metricsKey{}).(*Metrics)
	if !ok || m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[key] = value
}

// Values returns a copy of the reported metrics, or nil when none were reported.
func (m *Metrics) Values() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.values) == 0 {
		return nil
	}
	return maps.Clone(m.values)
}
