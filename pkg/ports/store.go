package ports

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
)

// RunStore defines the interface for persisting run records.
type RunStore interface {
	// Save persists the record under rec.ID, replacing any previous version.
	Save(ctx context.Context, rec *domain.RunRecord) error

	// Load retrieves the record of a run.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.RunRecord, error)

	// Delete removes the record. Deleting a missing run is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of every stored run.
	List(ctx context.Context) ([]string, error)
}
