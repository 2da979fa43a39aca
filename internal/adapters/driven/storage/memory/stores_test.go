package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

func TestConnectorStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewConnectorStore()

	config := map[string]string{"path": "/srv/docs"}
	require.NoError(t, store.Save(ctx, domain.Connector{Name: "docs", Type: "filesystem", Config: config}))
	require.NoError(t, store.Save(ctx, domain.Connector{Name: "archive", Type: "filesystem"}))

	// Stored config is isolated from the caller's map.
	config["path"] = "/elsewhere"
	got, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", got.Config["path"])

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "archive", list[0].Name)

	require.NoError(t, store.Delete(ctx, "docs"))
	_, err = store.Get(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Save(ctx, domain.Connector{}), domain.ErrInvalidInput)
}

func TestConnectorStore_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewConnectorStore()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, domain.Connector{Name: "docs", Type: "filesystem", CreatedAt: created}))
	require.NoError(t, store.Save(ctx, domain.Connector{Name: "docs", Type: "filesystem"}))

	got, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
}

func TestScheduleStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewScheduleStore()

	sched, err := domain.ParseSchedule("connector1:60:0:1-2:3-5")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, *sched))

	// Mutating the caller's copy does not reach the store.
	sched.Intervals[0].StartHour = 7

	got, err := store.Get(ctx, "connector1")
	require.NoError(t, err)
	assert.Equal(t, "connector1:60:0:1-2:3-5", got.String())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, store.Save(ctx, domain.Schedule{}), domain.ErrInvalidScheduleFormat)
}

func TestScheduleStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewScheduleStore()
	for _, s := range []string{"zeta:1:0:0-0", "alpha:1:0:0-0", "#mid:1:0:0-0"} {
		sched, err := domain.ParseSchedule(s)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, *sched))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ConnectorName)
	assert.Equal(t, "mid", list[1].ConnectorName)
	assert.True(t, list[1].Disabled)
	assert.Equal(t, "zeta", list[2].ConnectorName)

	require.NoError(t, store.Delete(ctx, "mid"))
	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	_, err := store.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(ctx, domain.Checkpoint{ConnectorName: "c1", Token: "t1"}))
	require.NoError(t, store.Save(ctx, domain.Checkpoint{ConnectorName: "c1", Token: "t2"}))
	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryStore_OrderAndPrune(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Recorded out of order.
	for _, i := range []int{2, 0, 4, 1, 3} {
		require.NoError(t, store.RecordResult(ctx, &domain.TraversalResult{
			ConnectorName: "c1",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			DocumentsFed:  i,
		}))
	}

	history, err := store.GetHistory(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{history[0].DocumentsFed, history[1].DocumentsFed, history[2].DocumentsFed})

	require.NoError(t, store.PruneHistory(ctx, 2))
	history, err = store.GetHistory(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, store.DeleteHistory(ctx, "c1"))
	history, err = store.GetHistory(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, store.RecordResult(ctx, nil), domain.ErrInvalidInput)
}

func TestHistoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.RecordResult(ctx, &domain.TraversalResult{
				ConnectorName: "c1",
				StartedAt:     time.Unix(int64(i), 0),
			})
		}(i)
	}
	wg.Wait()

	history, err := store.GetHistory(ctx, "c1", 100)
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].StartedAt.After(history[i-1].StartedAt))
	}
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"queue.workers":     int64(8),
		"load.multiplier":   int64(3),
		"acceptor.feed":     "750ms",
		"acceptor.local":    500 * time.Millisecond,
		"acceptor.bad":      "soon",
		"scheduler.enabled": true,
		"log.level":         "debug",
		"paths":             []any{"a", 1, "b"},
	})

	assert.Equal(t, 8, store.GetInt("queue.workers"))
	assert.Equal(t, 3.0, store.GetFloat("load.multiplier"))
	assert.Equal(t, 750*time.Millisecond, store.GetDuration("acceptor.feed"))
	assert.Equal(t, 500*time.Millisecond, store.GetDuration("acceptor.local"))
	assert.Zero(t, store.GetDuration("acceptor.bad"))
	assert.True(t, store.GetBool("scheduler.enabled"))
	assert.Equal(t, "debug", store.GetString("log.level"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("paths"))
	assert.Zero(t, store.GetInt("log.level"))
	assert.Equal(t, ":memory:", store.Path())

	require.NoError(t, store.Set("queue.workers", 2))
	assert.Equal(t, 2, store.GetInt("queue.workers"))
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}
