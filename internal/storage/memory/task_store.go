// Package memory provides in-process stores for development, tests and the
// single-node deployment. Stores can be backed by a Persister so state
// survives restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// Persister loads and saves a snapshot of store state.
type Persister[T any] interface {
	Load(ctx context.Context) (T, bool, error)
	Save(ctx context.Context, snapshot T) error
}

// TaskSnapshot is the persisted form of a TaskStore.
type TaskSnapshot struct {
	Tasks map[string]crawler.Task `json:"tasks"`
}

// TaskStore keeps tasks in a map guarded by a mutex. Every mutation runs
// Task.Apply under the write lock.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]crawler.Task
	now       func() time.Time
	persister Persister[TaskSnapshot]
}

// TaskOption configures a TaskStore.
type TaskOption func(*TaskStore)

// WithTaskPersister persists every mutation.
func WithTaskPersister(p Persister[TaskSnapshot]) TaskOption {
	return func(s *TaskStore) { s.persister = p }
}

// WithTaskClock overrides the update timestamp source.
func WithTaskClock(c crawler.Clock) TaskOption {
	return func(s *TaskStore) { s.now = c.Now }
}

// NewTaskStore constructs a TaskStore, loading a snapshot when a persister is
// configured.
func NewTaskStore(ctx context.Context, opts ...TaskOption) (*TaskStore, error) {
	s := &TaskStore{
		tasks: make(map[string]crawler.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.persister != nil {
		snap, ok, err := s.persister.Load(ctx)
		if err != nil {
			return nil, &crawler.StoreIOError{Op: "load tasks", Err: err}
		}
		if ok && snap.Tasks != nil {
			s.tasks = snap.Tasks
		}
	}
	return s, nil
}

// CreateTask stores a new task.
func (s *TaskStore) CreateTask(ctx context.Context, task crawler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return crawler.ErrTaskExists
	}
	s.tasks[task.ID] = cloneTask(task)
	return s.saveLocked(ctx)
}

// UpdateTask applies upd atomically.
func (s *TaskStore) UpdateTask(ctx context.Context, taskID string, upd crawler.TaskUpdate) (crawler.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return crawler.Task{}, crawler.ErrTaskNotFound
	}
	next, err := task.Apply(upd, s.now())
	if err != nil {
		return cloneTask(task), err
	}
	s.tasks[taskID] = next
	if err := s.saveLocked(ctx); err != nil {
		return cloneTask(next), err
	}
	return cloneTask(next), nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (crawler.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return crawler.Task{}, crawler.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *TaskStore) saveLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap := TaskSnapshot{Tasks: make(map[string]crawler.Task, len(s.tasks))}
	for k, v := range s.tasks {
		snap.Tasks[k] = cloneTask(v)
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		return &crawler.StoreIOError{Op: "save tasks", Err: err}
	}
	return nil
}

func cloneTask(t crawler.Task) crawler.Task {
	if t.Result != nil {
		res := t.Result.Clone()
		t.Result = &res
	}
	return t
}
