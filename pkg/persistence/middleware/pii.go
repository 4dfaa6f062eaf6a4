package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
)

// Mask replaces the value of every masked key.
const Mask = "***"

type piiMiddleware struct {
	next     ports.RunStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching the
// patterns in the run state and in every trace record (input, changes, metrics).
// Masking is one-way: loaded records keep the mask.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.RunStore) ports.RunStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, rec *domain.RunRecord) error {
	// Clone so the caller's record stays intact.
	cloned := rec.Clone()
	m.mask(cloned.State)
	for i := range cloned.Trace {
		m.mask(cloned.Trace[i].Input)
		m.mask(cloned.Trace[i].Changes)
		m.mask(cloned.Trace[i].Metrics)
	}
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(values map[string]any) {
	for k, v := range values {
		if m.matches(k) {
			values[k] = Mask
			continue
		}
		m.maskValue(v)
	}
}

func (m *piiMiddleware) maskValue(v any) {
	switch val := v.(type) {
	case map[string]any:
		m.mask(val)
	case []any:
		for _, item := range val {
			m.maskValue(item)
		}
	case []map[string]any:
		for _, item := range val {
			m.mask(item)
		}
	}
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
