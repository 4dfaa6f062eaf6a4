package domain

import "time"

// Outcome classifies how a step invocation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// StepRecord describes one step invocation. Records are appended to the trace
// in invocation order and never modified afterwards.
type StepRecord struct {
	Seq      int            `json:"seq"`
	Graph    string         `json:"graph,omitempty"`
	Node     string         `json:"node"`
	Step     string         `json:"step"`
	Start    time.Time      `json:"start"`
	Duration time.Duration  `json:"duration"`
	Input    map[string]any `json:"input,omitempty"`
	Outcome  Outcome        `json:"outcome"`
	Error    string         `json:"error,omitempty"`
	Changes  map[string]any `json:"changes,omitempty"`
	Route    string         `json:"route,omitempty"` // Label chosen by the node's router, if any.
	Next     string         `json:"next,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// Failed reports whether the invocation ended in error.
func (r StepRecord) Failed() bool { return r.Outcome == OutcomeError }

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID         string          `json:"id"`
	Graph      string          `json:"graph"`
	Status     ExecutionStatus `json:"status"`
	State      map[string]any  `json:"state,omitempty"`
	Trace      []StepRecord    `json:"trace,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Duration returns the wall-clock time of the run, or zero while it is unfinished.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy of the record.
func (r *RunRecord) Clone() *RunRecord {
	out := *r
	if r.State != nil {
		out.State = cloneValue(r.State).(map[string]any)
	}
	if r.Trace != nil {
		out.Trace = make([]StepRecord, len(r.Trace))
		for i, rec := range r.Trace {
			out.Trace[i] = rec.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the step record.
func (r StepRecord) Clone() StepRecord {
	out := r
	if r.Input != nil {
		out.Input = cloneValue(r.Input).(map[string]any)
	}
	if r.Changes != nil {
		out.Changes = cloneValue(r.Changes).(map[string]any)
	}
	if r.Metrics != nil {
		out.Metrics = cloneValue(r.Metrics).(map[string]any)
	}
	return out
}
