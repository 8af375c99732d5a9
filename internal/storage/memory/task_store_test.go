package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type snapshotPersister[T any] struct {
	mu      sync.Mutex
	snap    T
	saved   bool
	saves   int
	saveErr error
}

func (p *snapshotPersister[T]) Load(context.Context) (T, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.saved, nil
}

func (p *snapshotPersister[T]) Save(_ context.Context, snap T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.snap = snap
	p.saved = true
	return nil
}

func newTask(id string) crawler.Task {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return crawler.Task{
		ID:        id,
		Status:    crawler.TaskStatusPending,
		SourceURL: "https://www.douyin.com/video/1",
		Platform:  crawler.PlatformDouyin,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	later := time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)
	store, err := NewTaskStore(ctx, WithTaskClock(fixedClock{t: later}))
	require.NoError(t, err)

	require.NoError(t, store.CreateTask(ctx, newTask("t1")))
	require.ErrorIs(t, store.CreateTask(ctx, newTask("t1")), crawler.ErrTaskExists)

	task, err := store.UpdateTask(ctx, "t1", crawler.TaskUpdate{Status: crawler.TaskStatusProcessing, Progress: 10})
	require.NoError(t, err)
	require.Equal(t, later, task.UpdatedAt)

	_, err = store.UpdateTask(ctx, "t1", crawler.TaskUpdate{Progress: 5})
	require.ErrorIs(t, err, crawler.ErrProgressRegression)

	media := &crawler.RawMedia{Title: "t", Tags: []string{"a"}}
	task, err = store.UpdateTask(ctx, "t1", crawler.TaskUpdate{Status: crawler.TaskStatusCompleted, Progress: 100, Result: media})
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, task.Status)

	media.Tags[0] = "mutated"
	got, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.Result.Tags)

	_, err = store.UpdateTask(ctx, "t1", crawler.TaskUpdate{Status: crawler.TaskStatusFailed, Progress: 100})
	require.ErrorIs(t, err, crawler.ErrTaskTerminal)

	_, err = store.GetTask(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrTaskNotFound)
	_, err = store.UpdateTask(ctx, "missing", crawler.TaskUpdate{})
	require.ErrorIs(t, err, crawler.ErrTaskNotFound)
}

func TestTaskStoreConcurrentUpdatesAreSerialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewTaskStore(ctx)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.CreateTask(ctx, newTask(id)))
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, p := range []int{10, 20, 80} {
				_, _ = store.UpdateTask(ctx, id, crawler.TaskUpdate{Status: crawler.TaskStatusProcessing, Progress: p})
			}
			_, _ = store.UpdateTask(ctx, id, crawler.TaskUpdate{Status: crawler.TaskStatusCompleted, Progress: 100})
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		task, err := store.GetTask(ctx, id)
		require.NoError(t, err)
		require.Equal(t, crawler.TaskStatusCompleted, task.Status)
		require.Equal(t, 100, task.Progress)
	}
}

func TestTaskStorePersistsAndReloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := &snapshotPersister[TaskSnapshot]{}
	store, err := NewTaskStore(ctx, WithTaskPersister(p))
	require.NoError(t, err)
	require.NoError(t, store.CreateTask(ctx, newTask("t1")))

	reloaded, err := NewTaskStore(ctx, WithTaskPersister(p))
	require.NoError(t, err)
	task, err := reloaded.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusPending, task.Status)
}

func TestTaskStoreReportsSaveFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := &snapshotPersister[TaskSnapshot]{saveErr: errors.New("disk full")}
	store, err := NewTaskStore(ctx, WithTaskPersister(p))
	require.NoError(t, err)

	err = store.CreateTask(ctx, newTask("t1"))
	var ioErr *crawler.StoreIOError
	require.ErrorAs(t, err, &ioErr)

	// The in-memory state still advances.
	_, err = store.GetTask(ctx, "t1")
	require.NoError(t, err)
}
