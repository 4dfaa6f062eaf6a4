package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Observers cannot alter control flow: errors and panics are logged and dropped,
// and one failing observer does not hide the event from the others. Each
// observer gets its own copy of the record.

func (r *run) notifyStarted(ctx context.Context, rec domain.StepRecord) {
	for _, o := range r.observers {
		r.guard(ctx, "step_started", rec, func() error { return o.StepStarted(ctx, rec.Clone()) })
	}
}

func (r *run) notifyFinished(ctx context.Context, rec domain.StepRecord) {
	for _, o := range r.observers {
		r.guard(ctx, "step_finished", rec, func() error { return o.StepFinished(ctx, rec.Clone()) })
	}
}

func (r *run) guard(ctx context.Context, event string, rec domain.StepRecord, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "observer panicked", "event", event, "node", rec.Node, "error", fmt.Errorf("%v", p))
		}
	}()
	if err := fn(); err != nil {
		r.logger.WarnContext(ctx, "observer failed", "event", event, "node", rec.Node, "error", err)
	}
}
