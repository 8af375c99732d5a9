package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// TaskStore persists tasks in Postgres. UpdateTask locks the row so
// concurrent transitions are serialized.
type TaskStore struct {
	db    DB
	table string
	now   func() time.Time
}

// NewTaskStore constructs a TaskStore on db.
func NewTaskStore(db DB, table string) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultTasksTable)
	if err != nil {
		return nil, err
	}
	return &TaskStore{db: db, table: name, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the pool.
func (s *TaskStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// CreateTask inserts a new task row.
func (s *TaskStore) CreateTask(ctx context.Context, task crawler.Task) error {
	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, progress, source_url, platform, result, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.db.Exec(ctx, query,
		task.ID,
		string(task.Status),
		task.Progress,
		task.SourceURL,
		string(task.Platform),
		result,
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return &crawler.StoreIOError{Op: "insert task", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrTaskExists
	}
	return nil
}

// UpdateTask applies upd inside a transaction holding the row lock.
func (s *TaskStore) UpdateTask(ctx context.Context, taskID string, upd crawler.TaskUpdate) (crawler.Task, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return crawler.Task{}, &crawler.StoreIOError{Op: "begin update", Err: err}
	}

	current, err := scanTask(tx.QueryRow(ctx, s.selectSQL()+" FOR UPDATE", taskID))
	if err != nil {
		_ = tx.Rollback(ctx)
		return crawler.Task{}, err
	}
	next, err := current.Apply(upd, s.now())
	if err != nil {
		_ = tx.Rollback(ctx)
		return current, err
	}
	result, err := encodeResult(next.Result)
	if err != nil {
		_ = tx.Rollback(ctx)
		return current, err
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $1, progress = $2, result = $3, error = $4, updated_at = $5
WHERE id = $6`, s.table)
	if _, err := tx.Exec(ctx, query, string(next.Status), next.Progress, result, next.Error, next.UpdatedAt, taskID); err != nil {
		_ = tx.Rollback(ctx)
		return current, &crawler.StoreIOError{Op: "update task", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return current, &crawler.StoreIOError{Op: "commit update", Err: err}
	}
	return next, nil
}

// GetTask loads a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (crawler.Task, error) {
	return scanTask(s.db.QueryRow(ctx, s.selectSQL(), taskID))
}

func (s *TaskStore) selectSQL() string {
	return fmt.Sprintf(`
SELECT id, status, progress, source_url, platform, result, error, created_at, updated_at
FROM %s WHERE id = $1`, s.table)
}

func scanTask(row pgx.Row) (crawler.Task, error) {
	var (
		task             crawler.Task
		status, platform string
		result           []byte
	)
	err := row.Scan(
		&task.ID,
		&status,
		&task.Progress,
		&task.SourceURL,
		&platform,
		&result,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Task{}, crawler.ErrTaskNotFound
	}
	if err != nil {
		return crawler.Task{}, &crawler.StoreIOError{Op: "load task", Err: err}
	}
	task.Status = crawler.TaskStatus(status)
	task.Platform = crawler.Platform(platform)
	if len(result) > 0 {
		var media crawler.RawMedia
		if err := json.Unmarshal(result, &media); err != nil {
			return crawler.Task{}, &crawler.StoreIOError{Op: "decode task result", Err: err}
		}
		task.Result = &media
	}
	return task, nil
}

func encodeResult(m *crawler.RawMedia) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal task result: %w", err)
	}
	return data, nil
}
