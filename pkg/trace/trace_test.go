package trace_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_AppendAndRead(t *testing.T) {
	tr := trace.New()
	_, ok := tr.Last()
	assert.False(t, ok)

	for i, node := range []string{"a", "b", "a"} {
		tr.Append(domain.StepRecord{Seq: i + 1, Node: node})
	}

	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []string{"a", "b", "a"}, tr.Path())
	assert.Equal(t, 2, tr.Visits("a"))

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Seq)

	var seqs []int
	for rec := range tr.All() {
		seqs = append(seqs, rec.Seq)
	}
	assert.Equal(t, []int{1, 2, 3}, seqs)

	recs := tr.Records()
	recs[0].Node = "mutated"
	assert.Equal(t, "a", tr.Records()[0].Node)
}

func TestTrace_ConcurrentReaders(t *testing.T) {
	tr := trace.New()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 100 {
			tr.Append(domain.StepRecord{Seq: i + 1, Node: fmt.Sprint(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			_ = tr.Len()
			for range tr.All() {
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 100, tr.Len())
}

func TestHooksAndMulti(t *testing.T) {
	var started, finished []string
	h := trace.Hooks{
		OnStepStarted: func(_ context.Context, r domain.StepRecord) error {
			started = append(started, r.Node)
			return nil
		},
		OnStepFinished: func(_ context.Context, r domain.StepRecord) error {
			finished = append(finished, r.Node)
			return errors.New("sink full")
		},
	}
	m := trace.Multi{h, nil, trace.Hooks{}}

	ctx := context.Background()
	require.NoError(t, m.StepStarted(ctx, domain.StepRecord{Node: "a"}))
	err := m.StepFinished(ctx, domain.StepRecord{Node: "a"})
	assert.ErrorContains(t, err, "sink full")
	assert.Equal(t, []string{"a"}, started)
	assert.Equal(t, []string{"a"}, finished)
}

func TestReport(t *testing.T) {
	// No collector: no panic
	trace.Report(context.Background(), "ignored", 1)

	m := &trace.Metrics{}
	assert.Nil(t, m.Values())

	ctx := trace.WithMetrics(context.Background(), m)
	trace.Report(ctx, "hits", 3)
	trace.Report(ctx, "source", "mock")
	assert.Equal(t, map[string]any{"hits": 3, "source": "mock"}, m.Values())
}
