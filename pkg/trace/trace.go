package trace

import (
	"iter"
	"slices"
	"sync"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Trace is the append-only list of step records for one execution.
// It is safe to read while the execution is still appending.
type Trace struct {
	mu      sync.RWMutex
	records []domain.StepRecord
}

// New creates an empty trace.
func New() *Trace {
	return &Trace{}
}

// Append adds a record. Records are kept in the order they are appended.
func (t *Trace) Append(rec domain.StepRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
}

// Len returns the number of records.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Records returns a copy of all records.
func (t *Trace) Records() []domain.StepRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.records)
}

// All iterates over the records present when iteration starts.
func (t *Trace) All() iter.Seq[domain.StepRecord] {
	return slices.Values(t.Records())
}

// Last returns the most recent record.
func (t *Trace) Last() (domain.StepRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.records) == 0 {
		return domain.StepRecord{}, false
	}
	return t.records[len(t.records)-1], true
}

// Visits returns the number of records for node.
func (t *Trace) Visits(node string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, r := range t.records {
		if r.Node == node {
			n++
		}
	}
	return n
}

// Path returns the visited node names in order.
func (t *Trace) Path() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path := make([]string, len(t.records))
	for i, r := range t.records {
		path[i] = r.Node
	}
	return path
}
