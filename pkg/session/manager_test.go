package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/stepflow/pkg/adapters/memory"
	"github.com/aretw0/stepflow/pkg/adapters/redis"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/ports"
	"github.com/aretw0/stepflow/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency to provoke lost updates if locking is missing.
type slowStore struct {
	ports.RunStore
}

func (s slowStore) Load(ctx context.Context, id string) (*domain.RunRecord, error) {
	time.Sleep(2 * time.Millisecond)
	return s.RunStore.Load(ctx, id)
}

func (s slowStore) Save(ctx context.Context, rec *domain.RunRecord) error {
	time.Sleep(2 * time.Millisecond)
	return s.RunStore.Save(ctx, rec)
}

func TestManager_UpdateIsSerialized(t *testing.T) {
	manager := session.NewManager(slowStore{memory.NewStore()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, "race", func(rec *domain.RunRecord) error {
				rec.Attempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := manager.Load(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Attempts, "no read-modify-write may be lost")
}

func TestManager_Update(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	t.Run("creates missing run", func(t *testing.T) {
		rec, err := manager.Update(ctx, "new", func(rec *domain.RunRecord) error {
			assert.Equal(t, domain.StatusPending, rec.Status)
			rec.Graph = "g"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "new", rec.ID)

		stored, err := manager.Load(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, "g", stored.Graph)
	})

	t.Run("fn error aborts the save", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := manager.Update(ctx, "aborted", func(*domain.RunRecord) error { return boom })
		assert.ErrorIs(t, err, boom)

		_, err = manager.Load(ctx, "aborted")
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})
}

func TestManager_Records(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &domain.RunRecord{ID: "a", Graph: "g1"}))
	require.NoError(t, manager.Save(ctx, &domain.RunRecord{ID: "b", Graph: "g2"}))

	recs, err := manager.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "g2", recs[1].Graph)

	require.NoError(t, manager.Delete(ctx, "a"))
	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewFromClient(client)
	manager := session.NewManager(store,
		session.WithLocker(redis.NewLocker(client, "test:")),
		session.WithLockTTL(time.Minute),
	)
	ctx := context.Background()

	err := manager.WithLock(ctx, "run-1", func(ctx context.Context) error {
		assert.True(t, mr.Exists("test:lock:run-1"), "lock held while fn runs")
		return store.Save(ctx, &domain.RunRecord{ID: "run-1"})
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:run-1"), "lock released afterwards")

	t.Run("lock timeout", func(t *testing.T) {
		mr.Set("test:lock:busy", "someone-else")
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		err := manager.WithLock(ctx, "busy", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
