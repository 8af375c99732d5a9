package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creative-collector/internal/store"
)

// HistoryStore implements store.HistoryRepository on the task_runs and
// task_events tables.
type HistoryStore struct {
	db DB
}

// NewHistoryStore constructs a HistoryStore on db.
func NewHistoryStore(db DB) (*HistoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HistoryStore{db: db}, nil
}

// UpsertRunStart inserts the run unless it already exists.
func (s *HistoryStore) UpsertRunStart(ctx context.Context, run store.TaskRun) error {
	query := `
		INSERT INTO task_runs (task_id, platform, source_url, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO NOTHING;
	`
	_, err := s.db.Exec(ctx, query, run.TaskID, run.Platform, run.SourceURL, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun stamps the final status of a run.
func (s *HistoryStore) CompleteRun(
	ctx context.Context,
	taskID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE task_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE task_id = $4;
	`
	tag, err := s.db.Exec(ctx, query, finishedAt, string(status), errMsg, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendEvents inserts all events with one statement.
func (s *HistoryStore) AppendEvents(ctx context.Context, events []store.StageEvent) error {
	if len(events) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("INSERT INTO task_events (task_id, stage, progress, note, at) VALUES ")
	args := make([]any, 0, len(events)*5)
	for i, evt := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, evt.TaskID, evt.Stage, evt.Progress, evt.Note, evt.At)
	}
	if _, err := s.db.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("failed to insert stage events: %w", err)
	}
	return nil
}

// GetRun loads a run by task ID.
func (s *HistoryStore) GetRun(ctx context.Context, taskID uuid.UUID) (store.TaskRun, error) {
	query := `
		SELECT task_id, platform, source_url, started_at, finished_at, status, error_message
		FROM task_runs
		WHERE task_id = $1;
	`
	run, err := scanRun(s.db.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.TaskRun{}, store.ErrNotFound
	}
	if err != nil {
		return store.TaskRun{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first with an optional status filter.
func (s *HistoryStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.TaskRun, error) {
	query := `
		SELECT task_id, platform, source_url, started_at, finished_at, status, error_message
		FROM task_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.db.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.TaskRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListEvents lists a run's events oldest first.
func (s *HistoryStore) ListEvents(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]store.StageEvent, error) {
	query := `
		SELECT task_id, stage, progress, note, at
		FROM task_events
		WHERE task_id = $1
		ORDER BY at ASC, id ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []store.StageEvent{}
	for rows.Next() {
		var evt store.StageEvent
		if err := rows.Scan(&evt.TaskID, &evt.Stage, &evt.Progress, &evt.Note, &evt.At); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func scanRun(row pgx.Row) (store.TaskRun, error) {
	var (
		run    store.TaskRun
		status string
	)
	err := row.Scan(
		&run.TaskID,
		&run.Platform,
		&run.SourceURL,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
	)
	run.Status = store.RunStatus(status)
	return run, err
}
