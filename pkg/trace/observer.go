package trace

import (
	"context"
	"errors"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Observer receives step lifecycle notifications.
// Returned errors are logged by the executor and never change the run.
type Observer interface {
	StepStarted(ctx context.Context, rec domain.StepRecord) error
	StepFinished(ctx context.Context, rec domain.StepRecord) error
}

// Hooks adapts plain functions to Observer. Nil hooks are skipped.
type Hooks struct {
	OnStepStarted  func(context.Context, domain.StepRecord) error
	OnStepFinished func(context.Context, domain.StepRecord) error
}

func (h Hooks) StepStarted(ctx context.Context, rec domain.StepRecord) error {
	if h.OnStepStarted == nil {
		return nil
	}
	return h.OnStepStarted(ctx, rec)
}

func (h Hooks) StepFinished(ctx context.Context, rec domain.StepRecord) error {
	if h.OnStepFinished == nil {
		return nil
	}
	return h.OnStepFinished(ctx, rec)
}

// Multi fans a notification out to several observers and joins their errors.
type Multi []Observer

func (m Multi) StepStarted(ctx context.Context, rec domain.StepRecord) error {
	var errs []error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.StepStarted(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) StepFinished(ctx context.Context, rec domain.StepRecord) error {
	var errs []error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.StepFinished(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
