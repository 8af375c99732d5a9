package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested task run does not exist.
var ErrNotFound = errors.New("task run not found")

// RunStatus mirrors the task_runs.status column.
type RunStatus string

// Run statuses.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunTimeout  RunStatus = "timeout"
	RunCanceled RunStatus = "canceled"
)

// ParseRunStatus maps a query value to a RunStatus.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunRunning, RunSuccess, RunFailed, RunTimeout, RunCanceled:
		return RunStatus(s), true
	case "error":
		return RunFailed, true
	default:
		return "", false
	}
}

// TaskRun summarizes one execution of a collection task.
type TaskRun struct {
	TaskID       uuid.UUID
	Platform     string
	SourceURL    string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage *string
}

// StageEvent is one persisted milestone.
type StageEvent struct {
	TaskID   uuid.UUID
	Stage    string
	Progress int
	Note     string
	At       time.Time
}

// HistoryRepository persists task runs and their stage trail.
type HistoryRepository interface {
	// UpsertRunStart creates the run row or leaves an existing one untouched.
	UpsertRunStart(ctx context.Context, run TaskRun) error
	// CompleteRun stamps the final status.
	CompleteRun(ctx context.Context, taskID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	AppendEvents(ctx context.Context, events []StageEvent) error

	GetRun(ctx context.Context, taskID uuid.UUID) (TaskRun, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]TaskRun, error)
	// ListEvents returns a run's events oldest first.
	ListEvents(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]StageEvent, error)
}
