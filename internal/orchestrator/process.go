package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/metrics"
	"github.com/JakeFAU/creative-collector/internal/progress"
)

// outcome is how a failed run ends.
type outcome struct {
	status  crawler.TaskStatus
	stage   progress.Stage
	message string
}

// Process runs one dequeued task to a terminal status. It never returns an
// error: failures become failed records and persistence problems are logged.
func (o *Orchestrator) Process(ctx context.Context, item crawler.QueueItem) {
	if item.Platform == "" {
		item.Platform = crawler.DetectPlatform(item.URL)
	}
	logger := o.logger.With(
		zap.String("task_id", item.TaskID),
		zap.String("platform", string(item.Platform)),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.track(item.TaskID, cancel)
	defer o.untrack(item.TaskID)

	started := o.clock.Now()
	if _, err := o.tasks.UpdateTask(ctx, item.TaskID, crawler.TaskUpdate{
		Status:   crawler.TaskStatusProcessing,
		Progress: crawler.ProgressStarted,
	}); err != nil {
		if errors.Is(err, crawler.ErrTaskTerminal) {
			logger.Info("task already terminal, skipping")
			return
		}
		logger.Error("mark task processing failed", zap.Error(err))
	}
	o.emit(item, progress.StageStarted, crawler.ProgressStarted, 0, "")

	taskCtx, cancelDeadline := context.WithTimeoutCause(runCtx, o.cfg.TaskTimeout, errTaskTimeout)
	defer cancelDeadline()

	o.update(ctx, item, crawler.TaskUpdate{Progress: crawler.ProgressClassified})
	o.emit(item, progress.StageClassified, crawler.ProgressClassified, 0, string(item.Platform))

	media, err := o.collect(taskCtx, item)
	if err != nil {
		o.fail(ctx, item, started, o.classify(taskCtx, err))
		return
	}

	o.update(ctx, item, crawler.TaskUpdate{Progress: crawler.ProgressCrawled})
	o.emit(item, progress.StageCrawled, crawler.ProgressCrawled, 0, "")

	rec := o.appendRecord(ctx, item, successRecord(item, media))
	o.update(ctx, item, crawler.TaskUpdate{
		Status:   crawler.TaskStatusCompleted,
		Progress: crawler.ProgressDone,
		Result:   &media,
	})
	dur := o.clock.Now().Sub(started)
	o.emit(item, progress.StageCompleted, crawler.ProgressDone, dur, "")
	o.observe(item.Platform, crawler.TaskStatusCompleted)
	o.notify(ctx, item, rec, crawler.TaskStatusCompleted, "")
	logger.Info("task completed", zap.Duration("duration", dur), zap.Int64("record_id", rec.ID))
}

// collect runs the platform crawler, or the self-authored branch, bounded by
// ctx even when the crawler ignores cancellation.
func (o *Orchestrator) collect(ctx context.Context, item crawler.QueueItem) (crawler.RawMedia, error) {
	type result struct {
		media crawler.RawMedia
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("collect panic: %v", r)}
			}
		}()
		m, err := o.collectOnce(ctx, item)
		done <- result{media: m, err: err}
	}()
	select {
	case <-ctx.Done():
		return crawler.RawMedia{}, context.Cause(ctx)
	case res := <-done:
		return res.media, res.err
	}
}

func (o *Orchestrator) collectOnce(ctx context.Context, item crawler.QueueItem) (crawler.RawMedia, error) {
	if item.Platform == crawler.PlatformSelfAuthored {
		return o.selfAuthored(ctx, item.URL)
	}
	c, ok := o.crawlers[item.Platform]
	if !ok {
		return crawler.RawMedia{}, crawler.UnsupportedURL(item.Platform, item.URL)
	}
	start := time.Now()
	media, err := c.Crawl(ctx, item.URL)
	metrics.ObserveCrawl(string(item.Platform), time.Since(start))
	if err != nil {
		return crawler.RawMedia{}, err
	}
	return media, nil
}

// selfAuthored builds media for free text: the text is the title and the
// cover is a synthesized placeholder. There is no video.
func (o *Orchestrator) selfAuthored(ctx context.Context, text string) (crawler.RawMedia, error) {
	if o.covers == nil {
		return crawler.RawMedia{}, errors.New("no placeholder generator configured")
	}
	coverURL, err := o.covers.Generate(ctx, text)
	if err != nil {
		return crawler.RawMedia{}, fmt.Errorf("placeholder cover: %w", err)
	}
	return crawler.RawMedia{
		Title:    text,
		Tags:     []string{},
		CoverURL: coverURL,
	}, nil
}

func (o *Orchestrator) classify(ctx context.Context, err error) outcome {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errTaskTimeout):
		return outcome{
			status:  crawler.TaskStatusTimeout,
			stage:   progress.StageTimeout,
			message: fmt.Sprintf("collection timed out after %s", o.cfg.TaskTimeout),
		}
	case errors.Is(cause, errTaskCanceled):
		return outcome{
			status:  crawler.TaskStatusCanceled,
			stage:   progress.StageCanceled,
			message: errTaskCanceled.Error(),
		}
	default:
		return outcome{status: crawler.TaskStatusFailed, stage: progress.StageFailed, message: err.Error()}
	}
}

func (o *Orchestrator) fail(ctx context.Context, item crawler.QueueItem, started time.Time, out outcome) {
	o.logger.Warn("task did not complete",
		zap.String("task_id", item.TaskID),
		zap.String("platform", string(item.Platform)),
		zap.String("status", string(out.status)),
		zap.String("error", out.message),
	)
	rec := o.appendRecord(ctx, item, failedRecord(item, out.message))
	o.update(ctx, item, crawler.TaskUpdate{
		Status:   out.status,
		Progress: crawler.ProgressDone,
		Error:    out.message,
	})
	o.emit(item, out.stage, crawler.ProgressDone, o.clock.Now().Sub(started), out.message)
	o.observe(item.Platform, out.status)
	o.notify(ctx, item, rec, out.status, out.message)
}

// persistCtx detaches store writes from task cancellation so a timed-out or
// canceled task still reaches its terminal state.
func (o *Orchestrator) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
}

func (o *Orchestrator) update(ctx context.Context, item crawler.QueueItem, upd crawler.TaskUpdate) {
	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	if _, err := o.tasks.UpdateTask(pctx, item.TaskID, upd); err != nil {
		o.logger.Error("task update failed",
			zap.String("task_id", item.TaskID),
			zap.String("status", string(upd.Status)),
			zap.Int("progress", upd.Progress),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) appendRecord(ctx context.Context, item crawler.QueueItem, rec crawler.CollectionRecord) crawler.CollectionRecord {
	now := o.clock.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	pctx, cancel := o.persistCtx(ctx)
	defer cancel()
	stored, err := o.records.AppendRecord(pctx, rec)
	if err != nil {
		o.logger.Error("append record failed",
			zap.String("task_id", item.TaskID),
			zap.Int64("record_id", stored.ID),
			zap.Error(err),
		)
		// A store may keep the record even though a later step (such as a
		// snapshot write) failed; an assigned id means it exists.
		if stored.ID != 0 {
			return stored
		}
		return rec
	}
	return stored
}

func successRecord(item crawler.QueueItem, media crawler.RawMedia) crawler.CollectionRecord {
	videoURL := media.VideoURL
	if videoURL == "" && item.Platform.Crawlable() {
		videoURL = item.URL
	}
	tags := media.Tags
	if tags == nil {
		tags = []string{}
	}
	return crawler.CollectionRecord{
		Title:          media.Title,
		Tags:           append([]string(nil), tags...),
		CoverURL:       media.CoverURL,
		VideoURL:       videoURL,
		SourcePlatform: item.Platform,
		Status:         crawler.RecordStatusSuccess,
	}
}

func failedRecord(item crawler.QueueItem, message string) crawler.CollectionRecord {
	videoURL := ""
	if item.Platform.Crawlable() {
		videoURL = item.URL
	}
	return crawler.CollectionRecord{
		Tags:           []string{},
		VideoURL:       videoURL,
		SourcePlatform: item.Platform,
		Status:         crawler.RecordStatusFailed,
		ErrorMessage:   &message,
	}
}

func (o *Orchestrator) observe(platform crawler.Platform, status crawler.TaskStatus) {
	metrics.ObserveTask(string(platform), string(status))
}
