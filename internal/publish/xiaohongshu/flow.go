// Package xiaohongshu publishes videos through the Xiaohongshu creator
// center. Every element is located through selector tables so markup drift
// degrades individual steps instead of aborting the whole upload.
package xiaohongshu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/metrics"
	"github.com/JakeFAU/creative-collector/internal/publish"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

// Timing bounds every wait in the flow.
type Timing struct {
	URLPoll          selector.PollConfig
	UploadAttempts   int
	UploadPoll       selector.PollConfig
	UploadRetryPause time.Duration
	SuggestionPoll   selector.PollConfig
	ModalPoll        selector.PollConfig
	SubmitTimeout    time.Duration
	SubmitInterval   time.Duration
	TourAttempts     int
	Step             time.Duration
	KeyPause         time.Duration
}

// DefaultTiming matches the pacing the creator center tolerates.
func DefaultTiming() Timing {
	return Timing{
		URLPoll:          selector.PollConfig{Attempts: 10, Interval: 500 * time.Millisecond},
		UploadAttempts:   3,
		UploadPoll:       selector.PollConfig{Attempts: 10, Interval: time.Second},
		UploadRetryPause: 2 * time.Second,
		SuggestionPoll:   selector.PollConfig{Attempts: 5, Interval: 400 * time.Millisecond},
		ModalPoll:        selector.PollConfig{Attempts: 5, Interval: 500 * time.Millisecond},
		SubmitTimeout:    60 * time.Second,
		SubmitInterval:   500 * time.Millisecond,
		TourAttempts:     6,
		Step:             time.Second,
		KeyPause:         300 * time.Millisecond,
	}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTiming replaces DefaultTiming.
func WithTiming(t Timing) Option {
	return func(p *Publisher) { p.timing = t }
}

// WithOverrides applies selector overrides to the built-in tables.
func WithOverrides(ov selector.Overrides) Option {
	return func(p *Publisher) { p.tables = p.tables.WithOverrides(ov) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l.Named("xiaohongshu")
		}
	}
}

// Publisher drives one upload per Publish call.
type Publisher struct {
	launcher publish.Launcher
	tables   Tables
	timing   Timing
	logger   *zap.Logger
}

// New builds a Publisher.
func New(launcher publish.Launcher, opts ...Option) *Publisher {
	p := &Publisher{
		launcher: launcher,
		tables:   DefaultTables(),
		timing:   DefaultTiming(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tables exposes the effective selector tables.
func (p *Publisher) Tables() Tables {
	return p.tables
}

// Publish uploads job and reports the terminal state. publish_failed and
// publish_timeout are outcomes, not errors; an error is returned for invalid
// input, launch failures and an invalid session.
func (p *Publisher) Publish(ctx context.Context, job publish.UploadJob) (publish.Result, error) {
	start := time.Now()
	m := publish.NewMachine()
	finish := func(reason string, confirmed bool) publish.Result {
		metrics.ObservePublish(string(m.State()))
		return publish.Result{
			State:           m.State(),
			Trace:           m.Trace(),
			Reason:          reason,
			UploadConfirmed: confirmed,
			Duration:        time.Since(start),
		}
	}

	if err := job.Validate(); err != nil {
		_ = m.To(publish.StateFailed)
		return finish(err.Error(), false), fmt.Errorf("publish job: %w", err)
	}
	sess, err := p.launcher.Launch(ctx, job.AccountFile)
	if err != nil {
		_ = m.To(publish.StateFailed)
		return finish(err.Error(), false), fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.logger.Warn("close browser session", zap.Error(cerr))
		}
	}()
	page := sess.Page()
	logger := p.logger.With(zap.String("file", job.FilePath))

	if err := p.validateSession(ctx, page); err != nil {
		_ = m.To(publish.StateFailed)
		return finish(err.Error(), false), err
	}
	_ = m.To(publish.StateSessionValidated)

	_ = m.To(publish.StateUploading)
	logger.Info("uploading video", zap.String("title", job.DisplayTitle()))
	confirmed, err := p.upload(ctx, page, job.FilePath)
	if err != nil {
		_ = m.To(publish.StateFailed)
		return finish(err.Error(), false), nil
	}
	if !confirmed {
		logger.Warn("upload success marker not seen, continuing")
	}

	_ = selector.Sleep(ctx, p.timing.Step)
	p.fillTitle(ctx, page, job.DisplayTitle())
	_ = selector.Sleep(ctx, p.timing.Step)
	p.fillTags(ctx, page, job.CleanTags())
	if job.ThumbnailPath != "" {
		p.setThumbnail(ctx, page, job.ThumbnailPath)
	}
	_ = m.To(publish.StateMetadataFilled)

	buttons := p.tables.PublishButton
	if job.PublishAt != nil {
		if err := p.setSchedule(ctx, page, *job.PublishAt); err != nil {
			_ = m.To(publish.StateFailed)
			return finish(err.Error(), confirmed), nil
		}
		_ = m.To(publish.StateScheduleSet)
		buttons = p.tables.ScheduleButton
	}

	p.dismissTour(ctx, page)
	_ = selector.Sleep(ctx, p.timing.Step)
	if !p.clickEnabled(ctx, page, buttons) {
		_ = m.To(publish.StateFailed)
		return finish("no enabled publish button", confirmed), nil
	}
	_ = m.To(publish.StateSubmitted)
	logger.Info("publish clicked")

	state, reason := p.awaitResult(ctx, page)
	_ = m.To(state)
	if state == publish.StatePublished {
		if err := sess.SaveStorageState(ctx, job.AccountFile); err != nil {
			logger.Warn("refresh storage state failed", zap.Error(err))
		}
		logger.Info("video published")
	} else {
		logger.Warn("publish did not succeed", zap.String("state", string(state)), zap.String("reason", reason))
	}
	return finish(reason, confirmed), nil
}

// ValidateSession opens the upload page with the stored account state and
// reports whether it is still logged in.
func (p *Publisher) ValidateSession(ctx context.Context, accountFile string) error {
	sess, err := p.launcher.Launch(ctx, accountFile)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer sess.Close()
	return p.validateSession(ctx, sess.Page())
}

func (p *Publisher) validateSession(ctx context.Context, page publish.Page) error {
	if err := page.Goto(ctx, UploadURL); err != nil {
		return fmt.Errorf("open upload page: %w", err)
	}
	p.dismissTour(ctx, page)
	outcome, _ := selector.Poll(ctx, p.timing.URLPoll, func(context.Context) (bool, error) {
		return strings.HasPrefix(page.URL(), UploadURL), nil
	})
	if outcome != selector.OutcomeSuccess {
		return fmt.Errorf("%w: redirected to %s", crawler.ErrSessionInvalid, page.URL())
	}
	if selector.Any(ctx, page, p.tables.LoginPrompt) {
		return fmt.Errorf("%w: login prompt shown", crawler.ErrSessionInvalid)
	}
	return nil
}

// dismissTour closes onboarding dialogs, giving up when no button matches.
func (p *Publisher) dismissTour(ctx context.Context, page publish.Page) {
	for i := 0; i < p.timing.TourAttempts; i++ {
		if !selector.Any(ctx, page, p.tables.TourContainer) {
			return
		}
		if !selector.Click(ctx, page, p.tables.TourButton).Matched {
			return
		}
		if selector.Sleep(ctx, p.timing.KeyPause) != nil {
			return
		}
	}
}

func (p *Publisher) setFiles(ctx context.Context, page publish.Page, t selector.Table, path string) bool {
	return selector.Resolve(ctx, page, t, func(ctx context.Context, _ selector.Probe, c selector.Candidate) (selector.Result, error) {
		return selector.Result{}, page.SetInputFiles(ctx, c.Selector, path)
	}).Matched
}

// upload sets the file and waits for the success marker. An upload-error
// marker triggers one re-set of the file.
func (p *Publisher) upload(ctx context.Context, page publish.Page, path string) (bool, error) {
	if !p.setFiles(ctx, page, p.tables.FileInput, path) {
		return false, errors.New("no file input found")
	}
	retried := false
	for attempt := 1; attempt <= p.timing.UploadAttempts; attempt++ {
		outcome, _ := selector.Poll(ctx, p.timing.UploadPoll, func(ctx context.Context) (bool, error) {
			if selector.Any(ctx, page, p.tables.UploadSuccess) {
				return true, nil
			}
			if !retried && selector.Any(ctx, page, p.tables.UploadError) {
				retried = true
				p.logger.Info("upload error shown, re-setting file")
				p.setFiles(ctx, page, p.tables.UploadRetryInput, path)
			}
			return false, nil
		})
		if outcome == selector.OutcomeSuccess {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		p.logger.Debug("upload not confirmed yet", zap.Int("attempt", attempt))
		if err := selector.Sleep(ctx, p.timing.UploadRetryPause); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (p *Publisher) fillTitle(ctx context.Context, page publish.Page, title string) {
	res := selector.Resolve(ctx, page, p.tables.Title, func(ctx context.Context, _ selector.Probe, c selector.Candidate) (selector.Result, error) {
		return selector.Result{}, page.Fill(ctx, c.Selector, title)
	})
	if res.Matched {
		p.logger.Debug("title filled", zap.String("selector", res.Candidate.Selector))
		return
	}
	p.logger.Warn("title inputs not found, typing into editor")
	if !selector.Click(ctx, page, p.tables.TitleFallback).Matched {
		p.logger.Error("title could not be filled")
		return
	}
	for _, step := range []func() error{
		func() error { return page.KeyboardPress(ctx, "Control+KeyA") },
		func() error { return page.KeyboardPress(ctx, "Delete") },
		func() error { return page.KeyboardType(ctx, title) },
		func() error { return page.KeyboardPress(ctx, "Enter") },
	} {
		if err := step(); err != nil {
			p.logger.Error("title typing failed", zap.Error(err))
			return
		}
	}
}

// fillTags types each tag as #tag, waits for the suggestion dropdown and
// commits with Enter whether or not it appeared.
func (p *Publisher) fillTags(ctx context.Context, page publish.Page, tags []string) {
	if len(tags) == 0 {
		return
	}
	res := selector.Resolve(ctx, page, p.tables.Content, func(ctx context.Context, _ selector.Probe, c selector.Candidate) (selector.Result, error) {
		if err := page.Click(ctx, c.Selector); err != nil {
			return selector.Result{}, err
		}
		_ = selector.Sleep(ctx, p.timing.KeyPause)
		for i, tag := range tags {
			if err := page.Type(ctx, c.Selector, "#"+tag); err != nil {
				return selector.Result{}, fmt.Errorf("type tag %q: %w", tag, err)
			}
			_ = selector.Sleep(ctx, p.timing.KeyPause)
			outcome, _ := selector.Poll(ctx, p.timing.SuggestionPoll, func(ctx context.Context) (bool, error) {
				return selector.Any(ctx, page, p.tables.Suggestion), nil
			})
			if outcome != selector.OutcomeSuccess {
				p.logger.Debug("no tag suggestion, committing anyway", zap.String("tag", tag))
			}
			if err := page.Press(ctx, c.Selector, "Enter"); err != nil {
				return selector.Result{}, fmt.Errorf("commit tag %q: %w", tag, err)
			}
			_ = selector.Sleep(ctx, p.timing.KeyPause)
			if n := p.topicCount(ctx, page); n < i+1 {
				p.logger.Debug("tag may not have converted", zap.String("tag", tag), zap.Int("topics", n))
			}
		}
		return selector.Result{}, nil
	})
	if !res.Matched {
		p.logger.Error("content editor not found, tags skipped", zap.Int("tags", len(tags)))
	}
}

func (p *Publisher) topicCount(ctx context.Context, page publish.Page) int {
	for _, c := range p.tables.Topic.Candidates {
		if n, err := page.Count(ctx, c.Selector); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// setThumbnail is best-effort; any miss leaves the platform default cover.
func (p *Publisher) setThumbnail(ctx context.Context, page publish.Page, path string) {
	if !selector.Click(ctx, page, p.tables.ThumbnailOpen).Matched {
		p.logger.Warn("cover picker not found")
		return
	}
	_, _ = selector.Poll(ctx, p.timing.ModalPoll, func(ctx context.Context) (bool, error) {
		return selector.Any(ctx, page, p.tables.ThumbnailModal), nil
	})
	selector.Click(ctx, page, p.tables.ThumbnailVertical)
	_ = selector.Sleep(ctx, p.timing.Step)
	if !p.setFiles(ctx, page, p.tables.ThumbnailInput, path) {
		p.logger.Warn("cover input not found")
		return
	}
	_ = selector.Sleep(ctx, p.timing.Step)
	outcome, _ := selector.Poll(ctx, p.timing.ModalPoll, func(ctx context.Context) (bool, error) {
		return selector.Click(ctx, page, p.tables.ThumbnailDone).Matched, nil
	})
	if outcome != selector.OutcomeSuccess {
		p.logger.Warn("cover confirm button not found")
	}
}

func (p *Publisher) setSchedule(ctx context.Context, page publish.Page, at time.Time) error {
	if !selector.Click(ctx, page, p.tables.ScheduleToggle).Matched {
		return errors.New("schedule toggle not found")
	}
	_ = selector.Sleep(ctx, p.timing.Step)
	if !selector.Click(ctx, page, p.tables.ScheduleInput).Matched {
		return errors.New("schedule input not found")
	}
	for _, step := range []func() error{
		func() error { return page.KeyboardPress(ctx, "Control+KeyA") },
		func() error { return page.KeyboardType(ctx, at.Format(publish.ScheduleLayout)) },
		func() error { return page.KeyboardPress(ctx, "Enter") },
	} {
		if err := step(); err != nil {
			return fmt.Errorf("type schedule: %w", err)
		}
	}
	_ = selector.Sleep(ctx, p.timing.Step)
	return nil
}

// clickEnabled clicks the first matching button that is not disabled.
func (p *Publisher) clickEnabled(ctx context.Context, page publish.Page, t selector.Table) bool {
	return selector.Resolve(ctx, page, t, func(ctx context.Context, _ selector.Probe, c selector.Candidate) (selector.Result, error) {
		disabled, err := page.Disabled(ctx, c.Selector)
		if err != nil {
			return selector.Result{}, err
		}
		if disabled {
			return selector.Result{}, fmt.Errorf("%q is disabled", c.Selector)
		}
		return selector.Result{}, page.Click(ctx, c.Selector)
	}).Matched
}

// awaitResult polls for the success URL or a visible failure marker.
func (p *Publisher) awaitResult(ctx context.Context, page publish.Page) (publish.State, string) {
	deadline := time.Now().Add(p.timing.SubmitTimeout)
	for {
		if strings.Contains(page.URL(), SuccessURL) {
			return publish.StatePublished, ""
		}
		if res := selector.ReadResult(ctx, page, p.tables.FailureMarker); res.Matched {
			return publish.StateFailed, "failure marker: " + crawler.Truncate(res.Value, 120)
		}
		if selector.Any(ctx, page, p.tables.FailureMarker) {
			return publish.StateFailed, "failure marker visible"
		}
		if !time.Now().Before(deadline) {
			return publish.StateTimedOut, crawler.ErrPublishTimeout.Error()
		}
		if err := selector.Sleep(ctx, p.timing.SubmitInterval); err != nil {
			return publish.StateTimedOut, err.Error()
		}
	}
}
