package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

var taskColumns = []string{"id", "status", "progress", "source_url", "platform", "result", "error", "created_at", "updated_at"}

func newTaskStore(t *testing.T) (*TaskStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewTaskStore(mock, "")
	require.NoError(t, err)
	fixed := time.Unix(1700000100, 0).UTC()
	store.now = func() time.Time { return fixed }
	return store, mock
}

func TestNewTaskStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewTaskStore(mock, "tasks; DROP TABLE x")
	require.Error(t, err)
	_, err = NewTaskStore(nil, "")
	require.Error(t, err)
}

func TestCreateTaskInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	now := time.Unix(1700000000, 0).UTC()
	task := crawler.Task{
		ID:        "task-1",
		Status:    crawler.TaskStatusPending,
		SourceURL: "https://www.douyin.com/video/1",
		Platform:  crawler.PlatformDouyin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO collection_tasks").
		WithArgs("task-1", "pending", 0, task.SourceURL, "douyin", []byte(nil), "", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateTask(context.Background(), task))

	mock.ExpectExec("INSERT INTO collection_tasks").
		WithArgs("task-1", "pending", 0, task.SourceURL, "douyin", []byte(nil), "", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.ErrorIs(t, store.CreateTask(context.Background(), task), crawler.ErrTaskExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskLocksAndApplies(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM collection_tasks WHERE id = \$1 FOR UPDATE`).
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow("task-1", "processing", 20, "https://www.toutiao.com/v", "toutiao", []byte(nil), "", created, created))
	mock.ExpectExec("UPDATE collection_tasks SET").
		WithArgs("completed", 100, []byte(`{"title":"t","tags":["a"],"cover_url":"","video_url":"v","subtitle":""}`), "", store.now(), "task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	task, err := store.UpdateTask(context.Background(), "task-1", crawler.TaskUpdate{
		Status:   crawler.TaskStatusCompleted,
		Progress: 100,
		Result:   &crawler.RawMedia{Title: "t", Tags: []string{"a"}, VideoURL: "v"},
	})
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, task.Status)
	require.Equal(t, crawler.PlatformToutiao, task.Platform)
	require.Equal(t, "t", task.Result.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskRollsBackOnRegression(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow("task-1", "processing", 80, "u", "douyin", []byte(nil), "", created, created))
	mock.ExpectRollback()

	_, err := store.UpdateTask(context.Background(), "task-1", crawler.TaskUpdate{Progress: 20})
	require.ErrorIs(t, err, crawler.ErrProgressRegression)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.UpdateTask(context.Background(), "nope", crawler.TaskUpdate{Progress: 10})
	require.ErrorIs(t, err, crawler.ErrTaskNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskDecodesResult(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT .* FROM collection_tasks").
		WithArgs("task-1").
		WillReturnRows(pgxmock.NewRows(taskColumns).
			AddRow("task-1", "completed", 100, "u", "self-authored", []byte(`{"title":"hello","tags":[]}`), "", created, created))

	task, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, crawler.PlatformSelfAuthored, task.Platform)
	require.Equal(t, "hello", task.Result.Title)

	mock.ExpectQuery("SELECT .* FROM collection_tasks").
		WithArgs("task-2").
		WillReturnError(errors.New("connection reset"))
	_, err = store.GetTask(context.Background(), "task-2")
	var ioErr *crawler.StoreIOError
	require.ErrorAs(t, err, &ioErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
