package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/trace"
)

// LogObserver writes step events to a structured logger.
// Starts are logged at debug level, successes at info and failures at warn.
type LogObserver struct {
	logger *slog.Logger
}

var _ trace.Observer = (*LogObserver)(nil)

// NewLogObserver creates a log observer. A nil logger discards everything.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) StepStarted(ctx context.Context, rec domain.StepRecord) error {
	o.logger.DebugContext(ctx, "step started",
		"graph", rec.Graph,
		"node", rec.Node,
		"step", rec.Step,
		"seq", rec.Seq,
	)
	return nil
}

func (o *LogObserver) StepFinished(ctx context.Context, rec domain.StepRecord) error {
	attrs := []any{
		"graph", rec.Graph,
		"node", rec.Node,
		"step", rec.Step,
		"seq", rec.Seq,
		"duration", rec.Duration,
	}
	if len(rec.Metrics) > 0 {
		attrs = append(attrs, "metrics", rec.Metrics)
	}
	if rec.Failed() {
		attrs = append(attrs, "error", rec.Error)
		o.logger.WarnContext(ctx, "step failed", attrs...)
		return nil
	}
	if rec.Next != "" {
		attrs = append(attrs, "next", rec.Next)
	}
	if rec.Route != "" {
		attrs = append(attrs, "route", rec.Route)
	}
	o.logger.InfoContext(ctx, "step finished", attrs...)
	return nil
}

// Multi combines observers into one. Nil entries are skipped.
func Multi(observers ...trace.Observer) trace.Observer {
	out := make(trace.Multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
