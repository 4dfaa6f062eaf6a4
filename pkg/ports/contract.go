package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RunStore
// implementation adheres to the interface contract.
func RunRecordStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := fmt.Sprintf("contract-run-%d", time.Now().UnixNano())

	newRecord := func(id string) *domain.RunRecord {
		started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		return &domain.RunRecord{
			ID:     id,
			Graph:  "research",
			Status: domain.StatusCompleted,
			State: map[string]any{
				"query": "go generics",
				"count": 3,
			},
			Trace: []domain.StepRecord{
				{Seq: 1, Graph: "research", Node: "search", Step: "web_search", Start: started,
					Duration: 20 * time.Millisecond, Outcome: domain.OutcomeSuccess, Next: domain.End},
			},
			Attempts:   1,
			StartedAt:  started,
			FinishedAt: started.Add(25 * time.Millisecond),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		rec := newRecord(runID)
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.ID, loaded.ID)
		assert.Equal(t, rec.Graph, loaded.Graph)
		assert.Equal(t, rec.Status, loaded.Status)
		assert.Equal(t, "go generics", loaded.State["query"])
		// JSON backed stores decode numbers as float64; only presence is part of the contract.
		assert.NotNil(t, loaded.State["count"])
		require.Len(t, loaded.Trace, 1)
		assert.Equal(t, "search", loaded.Trace[0].Node)
		assert.Equal(t, rec.Duration(), loaded.Duration())
	})

	t.Run("Save overwrites", func(t *testing.T) {
		rec := newRecord(runID)
		rec.Status = domain.StatusFailed
		rec.Error = "step failed"
		rec.Attempts = 3
		require.NoError(t, store.Save(ctx, rec))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, loaded.Status)
		assert.Equal(t, "step failed", loaded.Error)
		assert.Equal(t, 3, loaded.Attempts)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newRecord(runID)))
		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")

		assert.NoError(t, store.Delete(ctx, runID), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, newRecord(id1)))
		require.NoError(t, store.Save(ctx, newRecord(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
