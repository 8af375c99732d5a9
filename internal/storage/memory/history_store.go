package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/creative-collector/internal/store"
)

// HistoryStore keeps task runs and stage events in memory. Events beyond
// maxEventsPerRun are discarded oldest first.
type HistoryStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]store.TaskRun
	events map[uuid.UUID][]store.StageEvent
}

const maxEventsPerRun = 64

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		runs:   make(map[uuid.UUID]store.TaskRun),
		events: make(map[uuid.UUID][]store.StageEvent),
	}
}

// UpsertRunStart implements store.HistoryRepository.
func (h *HistoryStore) UpsertRunStart(_ context.Context, run store.TaskRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runs[run.TaskID]; ok {
		return nil
	}
	h.runs[run.TaskID] = run
	return nil
}

// CompleteRun implements store.HistoryRepository.
func (h *HistoryStore) CompleteRun(
	_ context.Context,
	taskID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	run, ok := h.runs[taskID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.ErrorMessage = errMsg
	h.runs[taskID] = run
	return nil
}

// AppendEvents implements store.HistoryRepository.
func (h *HistoryStore) AppendEvents(_ context.Context, events []store.StageEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, evt := range events {
		list := append(h.events[evt.TaskID], evt)
		if len(list) > maxEventsPerRun {
			list = list[len(list)-maxEventsPerRun:]
		}
		h.events[evt.TaskID] = list
	}
	return nil
}

// GetRun implements store.HistoryRepository.
func (h *HistoryStore) GetRun(_ context.Context, taskID uuid.UUID) (store.TaskRun, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	run, ok := h.runs[taskID]
	if !ok {
		return store.TaskRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns implements store.HistoryRepository.
func (h *HistoryStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.TaskRun, error) {
	h.mu.RLock()
	runs := make([]store.TaskRun, 0, len(h.runs))
	for _, r := range h.runs {
		if status != nil && r.Status != *status {
			continue
		}
		runs = append(runs, r)
	}
	h.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return window(runs, limit, offset), nil
}

// ListEvents implements store.HistoryRepository.
func (h *HistoryStore) ListEvents(_ context.Context, taskID uuid.UUID, limit, offset int) ([]store.StageEvent, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return window(append([]store.StageEvent(nil), h.events[taskID]...), limit, offset), nil
}

func window[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
