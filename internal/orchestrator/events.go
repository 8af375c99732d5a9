package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	idgen "github.com/JakeFAU/creative-collector/internal/id/uuid"
	"github.com/JakeFAU/creative-collector/internal/progress"
)

// CompletionEvent is published once per task when it reaches a terminal
// status.
type CompletionEvent struct {
	TaskID     string             `json:"task_id"`
	RecordID   int64              `json:"record_id,omitempty"`
	Status     crawler.TaskStatus `json:"status"`
	Platform   crawler.Platform   `json:"platform"`
	SourceURL  string             `json:"source_url"`
	Title      string             `json:"title,omitempty"`
	CoverURL   string             `json:"cover_url,omitempty"`
	Error      string             `json:"error,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
}

func (o *Orchestrator) emit(item crawler.QueueItem, stage progress.Stage, pct int, dur time.Duration, note string) {
	id, err := idgen.Parse(item.TaskID)
	if err != nil {
		o.logger.Debug("progress event skipped", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	o.events.Emit(progress.Event{
		TaskID:   id,
		TS:       o.clock.Now(),
		Stage:    stage,
		Platform: string(item.Platform),
		URL:      item.URL,
		Progress: pct,
		Dur:      dur,
		Note:     crawler.Truncate(note, 512),
	})
}

func (o *Orchestrator) notify(
	ctx context.Context,
	item crawler.QueueItem,
	rec crawler.CollectionRecord,
	status crawler.TaskStatus,
	errText string,
) {
	if o.pub == nil || o.cfg.Topic == "" {
		return
	}
	evt := CompletionEvent{
		TaskID:     item.TaskID,
		RecordID:   rec.ID,
		Status:     status,
		Platform:   item.Platform,
		SourceURL:  item.URL,
		Title:      rec.Title,
		CoverURL:   rec.CoverURL,
		Error:      errText,
		FinishedAt: o.clock.Now(),
	}
	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	msgID, err := o.pub.Publish(pctx, o.cfg.Topic, evt)
	if err != nil {
		o.logger.Warn("completion publish failed", zap.String("task_id", item.TaskID), zap.Error(err))
		return
	}
	o.logger.Debug("completion published", zap.String("task_id", item.TaskID), zap.String("message_id", msgID))
}
