// Package worker implements the collection task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/metrics"
)

// Processor runs a single dequeued collection task to completion.
type Processor interface {
	Process(ctx context.Context, item crawler.QueueItem)
}

// Config controls Worker behavior.
type Config struct {
	// ID labels log lines from this worker.
	ID int
	// DequeueBackoff is the pause after a failed dequeue.
	DequeueBackoff time.Duration
}

// Worker consumes queue items and hands them to the processor.
type Worker struct {
	queue  crawler.Queue
	proc   Processor
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue crawler.Queue, proc Processor, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DequeueBackoff <= 0 {
		cfg.DequeueBackoff = 500 * time.Millisecond
	}
	return &Worker{
		queue:  queue,
		proc:   proc,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.DequeueBackoff):
			}
			continue
		}
		w.logger.Debug("dequeued task",
			zap.String("task_id", item.TaskID),
			zap.String("platform", string(item.Platform)),
		)
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task processing panicked",
				zap.String("task_id", item.TaskID),
				zap.Error(fmt.Errorf("panic: %v", r)),
				zap.Stack("stack"),
			)
		}
	}()
	if w.proc == nil {
		w.logger.Error("no processor configured", zap.String("task_id", item.TaskID))
		return
	}
	w.proc.Process(ctx, item)
}
