// Package orchestrator owns the collection task lifecycle: submission,
// polling, cancellation, and the processing routine a worker runs for each
// dequeued task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/progress"
)

// DefaultTaskTimeout bounds one task from start to terminal status.
const DefaultTaskTimeout = 3 * time.Minute

// ErrEmptySubmission is returned by Submit for blank input.
var ErrEmptySubmission = errors.New("submission is empty")

var (
	errTaskTimeout  = errors.New("task deadline exceeded")
	errTaskCanceled = errors.New("task canceled")
)

// CoverGenerator synthesizes a cover for self-authored text.
type CoverGenerator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	TaskTimeout time.Duration
	// PersistTimeout bounds each best-effort store write.
	PersistTimeout time.Duration
	// Topic receives collection-completed events; empty disables them.
	Topic string
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Tasks     crawler.TaskStore
	Records   crawler.RecordStore
	Media     crawler.MediaStore
	Queue     crawler.Queue
	Crawlers  []crawler.Crawler
	Covers    CoverGenerator
	Publisher crawler.Publisher
	Progress  progress.Emitter
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	TaskID string `json:"task_id"`
}

// Snapshot is the polled view of a task.
type Snapshot struct {
	Status   crawler.TaskStatus `json:"status"`
	Progress int                `json:"progress"`
	Data     *crawler.RawMedia  `json:"data,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Orchestrator coordinates task state, crawlers and record persistence.
type Orchestrator struct {
	cfg      Config
	tasks    crawler.TaskStore
	records  crawler.RecordStore
	media    crawler.MediaStore
	queue    crawler.Queue
	crawlers map[crawler.Platform]crawler.Crawler
	covers   CoverGenerator
	pub      crawler.Publisher
	events   progress.Emitter
	ids      crawler.IDGenerator
	clock    crawler.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Tasks == nil || deps.Records == nil || deps.Queue == nil {
		return nil, errors.New("orchestrator: task store, record store and queue are required")
	}
	if deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("orchestrator: id generator and clock are required")
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Progress
	if events == nil {
		events = progress.Discard{}
	}
	crawlers := make(map[crawler.Platform]crawler.Crawler, len(deps.Crawlers))
	for _, c := range deps.Crawlers {
		crawlers[c.Platform()] = c
	}
	return &Orchestrator{
		cfg:      cfg,
		tasks:    deps.Tasks,
		records:  deps.Records,
		media:    deps.Media,
		queue:    deps.Queue,
		crawlers: crawlers,
		covers:   deps.Covers,
		pub:      deps.Publisher,
		events:   events,
		ids:      deps.IDs,
		clock:    deps.Clock,
		logger:   logger.Named("orchestrator"),
		running:  make(map[string]context.CancelCauseFunc),
	}, nil
}

// Submit records a pending task for input and queues it. Input that names no
// known platform is treated as self-authored text.
func (o *Orchestrator) Submit(ctx context.Context, input string) (TaskHandle, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return TaskHandle{}, ErrEmptySubmission
	}
	id, err := o.ids.NewID()
	if err != nil {
		return TaskHandle{}, fmt.Errorf("task id: %w", err)
	}
	now := o.clock.Now()
	task := crawler.Task{
		ID:        id,
		Status:    crawler.TaskStatusPending,
		Progress:  crawler.ProgressQueued,
		SourceURL: input,
		Platform:  crawler.DetectPlatform(input),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.tasks.CreateTask(ctx, task); err != nil {
		return TaskHandle{}, fmt.Errorf("create task: %w", err)
	}
	item := crawler.QueueItem{
		TaskID:    id,
		URL:       input,
		Platform:  task.Platform,
		Attempt:   1,
		Submitted: now.UnixMilli(),
	}
	if err := o.queue.Enqueue(ctx, item); err != nil {
		o.update(ctx, item, crawler.TaskUpdate{
			Status: crawler.TaskStatusFailed,
			Error:  "enqueue failed: " + err.Error(),
		})
		return TaskHandle{}, fmt.Errorf("enqueue task: %w", err)
	}
	o.emit(item, progress.StageQueued, crawler.ProgressQueued, 0, "")
	o.logger.Info("task submitted",
		zap.String("task_id", id),
		zap.String("platform", string(task.Platform)),
	)
	return TaskHandle{TaskID: id}, nil
}

// Poll reports a task's status. Unknown IDs yield not_found without error.
func (o *Orchestrator) Poll(ctx context.Context, taskID string) (Snapshot, error) {
	task, err := o.tasks.GetTask(ctx, taskID)
	if errors.Is(err, crawler.ErrTaskNotFound) {
		return Snapshot{Status: crawler.TaskStatusNotFound, Progress: 0}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get task: %w", err)
	}
	snap := Snapshot{Status: task.Status, Progress: task.Progress, Error: task.Error}
	if task.Result != nil {
		res := task.Result.Clone()
		snap.Data = &res
	}
	return snap, nil
}

// Task returns the full stored task.
func (o *Orchestrator) Task(ctx context.Context, taskID string) (crawler.Task, error) {
	task, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return crawler.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Cancel ends a task as canceled. A running task is interrupted and finishes
// through the normal failure path; a queued task is marked canceled and
// skipped when a worker picks it up.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	task, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task.Status.Terminal() {
		return crawler.ErrTaskTerminal
	}

	o.mu.Lock()
	if cancel, ok := o.running[taskID]; ok {
		o.mu.Unlock()
		cancel(errTaskCanceled)
		o.logger.Info("running task canceled", zap.String("task_id", taskID))
		return nil
	}
	// The lock stays held across the status write so a worker cannot start
	// the task in between.
	item := crawler.QueueItem{TaskID: taskID, URL: task.SourceURL, Platform: task.Platform}
	_, err = o.tasks.UpdateTask(ctx, taskID, crawler.TaskUpdate{
		Status:   crawler.TaskStatusCanceled,
		Progress: crawler.ProgressDone,
		Error:    errTaskCanceled.Error(),
	})
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}

	msg := errTaskCanceled.Error()
	rec := o.appendRecord(ctx, item, failedRecord(item, msg))
	o.emit(item, progress.StageCanceled, crawler.ProgressDone, 0, "canceled before start")
	o.observe(item.Platform, crawler.TaskStatusCanceled)
	o.notify(ctx, item, rec, crawler.TaskStatusCanceled, msg)
	o.logger.Info("queued task canceled", zap.String("task_id", taskID), zap.Int64("record_id", rec.ID))
	return nil
}

// Running reports how many tasks are between start and terminal status.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

func (o *Orchestrator) track(taskID string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	o.running[taskID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(taskID string) {
	o.mu.Lock()
	delete(o.running, taskID)
	o.mu.Unlock()
}
