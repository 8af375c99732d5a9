package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/progress"
	"github.com/JakeFAU/creative-collector/internal/store"
)

// StoreSink persists runs and stage events through a store.HistoryRepository.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes run transitions in order, then appends the batch's events in
// a single call.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	events := make([]store.StageEvent, 0, len(batch))
	for _, evt := range batch {
		if err := s.applyRun(ctx, evt); err != nil {
			return err
		}
		events = append(events, store.StageEvent{
			TaskID:   evt.TaskUUID(),
			Stage:    string(evt.Stage),
			Progress: evt.Progress,
			Note:     evt.Note,
			At:       evt.TS,
		})
	}
	if err := s.repo.AppendEvents(ctx, events); err != nil {
		return fmt.Errorf("append stage events: %w", err)
	}
	return nil
}

func (s *StoreSink) applyRun(ctx context.Context, evt progress.Event) error {
	if evt.Stage == progress.StageQueued {
		run := store.TaskRun{
			TaskID:    evt.TaskUUID(),
			Platform:  evt.Platform,
			SourceURL: evt.URL,
			StartedAt: evt.TS,
			Status:    store.RunRunning,
		}
		if err := s.repo.UpsertRunStart(ctx, run); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
		return nil
	}
	status, ok := runStatus(evt.Stage)
	if !ok {
		return nil
	}
	var note *string
	if evt.Note != "" {
		n := evt.Note
		note = &n
	}
	if err := s.repo.CompleteRun(ctx, evt.TaskUUID(), evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func runStatus(stage progress.Stage) (store.RunStatus, bool) {
	switch stage {
	case progress.StageCompleted:
		return store.RunSuccess, true
	case progress.StageFailed:
		return store.RunFailed, true
	case progress.StageTimeout:
		return store.RunTimeout, true
	case progress.StageCanceled:
		return store.RunCanceled, true
	default:
		return "", false
	}
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
