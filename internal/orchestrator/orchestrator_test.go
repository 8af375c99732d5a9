package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/clock/system"
	"github.com/JakeFAU/creative-collector/internal/crawler"
	idgen "github.com/JakeFAU/creative-collector/internal/id/uuid"
	"github.com/JakeFAU/creative-collector/internal/progress"
	pubmemory "github.com/JakeFAU/creative-collector/internal/publisher/memory"
	queuememory "github.com/JakeFAU/creative-collector/internal/queue/memory"
	"github.com/JakeFAU/creative-collector/internal/storage/memory"
)

type fakeCrawler struct {
	platform crawler.Platform
	media    crawler.RawMedia
	err      error
	block    bool
	started  chan struct{}
}

func (c *fakeCrawler) Platform() crawler.Platform { return c.platform }

func (c *fakeCrawler) Crawl(ctx context.Context, _ string) (crawler.RawMedia, error) {
	if c.started != nil {
		close(c.started)
	}
	if c.block {
		<-ctx.Done()
		return crawler.RawMedia{}, ctx.Err()
	}
	return c.media, c.err
}

type fakeCovers struct {
	url  string
	err  error
	text string
}

func (f *fakeCovers) Generate(_ context.Context, text string) (string, error) {
	f.text = text
	return f.url, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type failingRecords struct {
	crawler.RecordStore
}

func (failingRecords) AppendRecord(context.Context, crawler.CollectionRecord) (crawler.CollectionRecord, error) {
	return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: "append", Err: errors.New("disk full")}
}

// partialRecords stores the record and then reports a failure, like a
// snapshot write failing after the in-memory append.
type partialRecords struct {
	crawler.RecordStore
}

func (p partialRecords) AppendRecord(ctx context.Context, rec crawler.CollectionRecord) (crawler.CollectionRecord, error) {
	stored, err := p.RecordStore.AppendRecord(ctx, rec)
	if err != nil {
		return stored, err
	}
	return stored, &crawler.StoreIOError{Op: "snapshot", Err: errors.New("read-only file system")}
}

type harness struct {
	orch    *Orchestrator
	queue   *queuememory.Queue
	tasks   *memory.TaskStore
	records crawler.RecordStore
	media   *memory.BlobStore
	pub     *pubmemory.Publisher
	events  *recordingEmitter
}

type harnessOption func(*Config, *Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	tasks, err := memory.NewTaskStore(ctx)
	require.NoError(t, err)
	records, err := memory.NewRecordStore(ctx, nil)
	require.NoError(t, err)

	h := &harness{
		queue:   queuememory.NewQueue(8),
		tasks:   tasks,
		records: records,
		media:   memory.NewBlobStore(),
		pub:     pubmemory.New(),
		events:  &recordingEmitter{},
	}
	cfg := Config{Topic: "collection-completed", TaskTimeout: time.Second}
	deps := Deps{
		Tasks:     tasks,
		Records:   records,
		Media:     h.media,
		Queue:     h.queue,
		Covers:    &fakeCovers{url: "/getFile?filename=creative_collection%2Fcustom_ab12cd34.png"},
		Publisher: h.pub,
		Progress:  h.events,
		IDs:       idgen.New(),
		Clock:     system.New(),
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.records = deps.Records
	h.orch, err = New(cfg, deps)
	require.NoError(t, err)
	return h
}

func withCrawler(c crawler.Crawler) harnessOption {
	return func(_ *Config, d *Deps) { d.Crawlers = append(d.Crawlers, c) }
}

// runNext processes the next queued task synchronously.
func (h *harness) runNext(t *testing.T) crawler.QueueItem {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := h.queue.Dequeue(ctx)
	require.NoError(t, err)
	h.orch.Process(context.Background(), item)
	return item
}

func TestNewRequiresStores(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.orch.Submit(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptySubmission)
}

func TestDouyinSubmissionEndToEnd(t *testing.T) {
	t.Parallel()

	media := crawler.RawMedia{
		Title:    "Hotpot in Chongqing",
		Tags:     []string{"food", "travel"},
		CoverURL: "/getFile?filename=creative_collection%2Fhotpot_1a2b3c4d.jpg",
		VideoURL: "https://www.douyin.com/video/7300000000000000000",
		Subtitle: "so spicy",
	}
	h := newHarness(t, withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin, media: media}))
	ctx := context.Background()

	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/7300000000000000000")
	require.NoError(t, err)
	require.NotEmpty(t, handle.TaskID)

	snap, err := h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusPending, snap.Status)
	require.Equal(t, 0, snap.Progress)

	item := h.runNext(t)
	require.Equal(t, crawler.PlatformDouyin, item.Platform)

	snap, err = h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, snap.Status)
	require.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.Data)
	require.Equal(t, media, *snap.Data)

	page, err := h.orch.List(ctx, crawler.RecordFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	rec := page.Items[0]
	require.Equal(t, int64(1), rec.ID)
	require.Equal(t, crawler.RecordStatusSuccess, rec.Status)
	require.Equal(t, crawler.PlatformDouyin, rec.SourcePlatform)
	require.Equal(t, media.Tags, rec.Tags)
	require.Empty(t, rec.Script)
	require.Nil(t, rec.ErrorMessage)

	require.Equal(t, []progress.Stage{
		progress.StageQueued,
		progress.StageStarted,
		progress.StageClassified,
		progress.StageCrawled,
		progress.StageCompleted,
	}, h.events.stages())

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].Payload.(CompletionEvent)
	require.True(t, ok)
	require.Equal(t, handle.TaskID, evt.TaskID)
	require.Equal(t, int64(1), evt.RecordID)
	require.Equal(t, crawler.TaskStatusCompleted, evt.Status)
}

func TestSelfAuthoredSubmission(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	handle, err := h.orch.Submit(ctx, "my idea for a video")
	require.NoError(t, err)
	h.runNext(t)

	snap, err := h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, snap.Status)

	rec, err := h.orch.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, crawler.PlatformSelfAuthored, rec.SourcePlatform)
	require.Equal(t, "my idea for a video", rec.Title)
	require.Empty(t, rec.VideoURL)
	require.Contains(t, rec.CoverURL, "custom_ab12cd34.png")
	require.Equal(t, []string{}, rec.Tags)
}

func TestCrawlErrorProducesFailedRecord(t *testing.T) {
	t.Parallel()

	crawlErr := &crawler.CrawlError{
		Platform: crawler.PlatformToutiao,
		URL:      "https://www.toutiao.com/video/1",
		Err:      errors.New("net::ERR_NAME_NOT_RESOLVED"),
	}
	h := newHarness(t, withCrawler(&fakeCrawler{platform: crawler.PlatformToutiao, err: crawlErr}))
	ctx := context.Background()

	handle, err := h.orch.Submit(ctx, "https://www.toutiao.com/video/1")
	require.NoError(t, err)
	h.runNext(t)

	task, err := h.orch.Task(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusFailed, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Contains(t, task.Error, "ERR_NAME_NOT_RESOLVED")

	rec, err := h.orch.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, crawler.RecordStatusFailed, rec.Status)
	require.Equal(t, crawler.PlatformToutiao, rec.SourcePlatform)
	require.NotNil(t, rec.ErrorMessage)
	require.Equal(t, task.Error, *rec.ErrorMessage)
	require.Equal(t, "https://www.toutiao.com/video/1", rec.VideoURL)
	require.Equal(t, progress.StageFailed, h.events.stages()[len(h.events.stages())-1])
}

func TestMissingCrawlerFailsAsUnsupported(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	handle, err := h.orch.Submit(context.Background(), "https://www.douyin.com/video/9")
	require.NoError(t, err)
	h.runNext(t)

	task, err := h.orch.Task(context.Background(), handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusFailed, task.Status)
	require.Contains(t, task.Error, crawler.ErrUnsupportedURL.Error())
}

func TestTaskTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin, block: true}),
		func(c *Config, _ *Deps) { c.TaskTimeout = 20 * time.Millisecond },
	)
	ctx := context.Background()
	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/slow")
	require.NoError(t, err)
	h.runNext(t)

	snap, err := h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusTimeout, snap.Status)
	require.Equal(t, 100, snap.Progress)
	require.True(t, strings.HasPrefix(snap.Error, "collection timed out"))

	rec, err := h.orch.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, crawler.RecordStatusFailed, rec.Status)
	require.Equal(t, progress.StageTimeout, h.events.stages()[len(h.events.stages())-1])
}

func TestCancelRunningTask(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	h := newHarness(t, withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin, block: true, started: started}))
	ctx := context.Background()
	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/long")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h.runNext(t)
		close(done)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("crawl did not start")
	}
	require.Equal(t, 1, h.orch.Running())
	require.NoError(t, h.orch.Cancel(ctx, handle.TaskID))

	require.Eventually(t, func() bool {
		snap, err := h.orch.Poll(ctx, handle.TaskID)
		return err == nil && snap.Status == crawler.TaskStatusCanceled
	}, time.Second, 5*time.Millisecond)
	<-done
	require.Zero(t, h.orch.Running())

	require.ErrorIs(t, h.orch.Cancel(ctx, handle.TaskID), crawler.ErrTaskTerminal)
}

func TestCancelQueuedTaskIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin}))
	ctx := context.Background()
	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/queued")
	require.NoError(t, err)
	require.NoError(t, h.orch.Cancel(ctx, handle.TaskID))

	h.runNext(t)

	snap, err := h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCanceled, snap.Status)
	page, err := h.orch.List(ctx, crawler.RecordFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	rec := page.Items[0]
	require.Equal(t, crawler.RecordStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	require.Equal(t, errTaskCanceled.Error(), *rec.ErrorMessage)
	require.Equal(t, "https://www.douyin.com/video/queued", rec.VideoURL)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].Payload.(CompletionEvent)
	require.True(t, ok)
	require.Equal(t, crawler.TaskStatusCanceled, evt.Status)
	require.Equal(t, rec.ID, evt.RecordID)
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.ErrorIs(t, h.orch.Cancel(context.Background(), "missing"), crawler.ErrTaskNotFound)
}

func TestPollUnknownTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	snap, err := h.orch.Poll(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, Snapshot{Status: crawler.TaskStatusNotFound}, snap)
}

func TestPersistenceAndPublishFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin, media: crawler.RawMedia{Title: "ok"}}),
		func(_ *Config, d *Deps) { d.Records = failingRecords{RecordStore: d.Records} },
	)
	h.pub.FailWith(errors.New("broker down"))
	ctx := context.Background()

	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/1")
	require.NoError(t, err)
	h.runNext(t)

	snap, err := h.orch.Poll(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, crawler.TaskStatusCompleted, snap.Status)
	require.Empty(t, h.pub.Messages())
}

func TestCompletionCarriesIDOfPartiallyPersistedRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		withCrawler(&fakeCrawler{platform: crawler.PlatformDouyin, media: crawler.RawMedia{Title: "kept"}}),
		func(_ *Config, d *Deps) { d.Records = partialRecords{RecordStore: d.Records} },
	)
	ctx := context.Background()

	handle, err := h.orch.Submit(ctx, "https://www.douyin.com/video/2")
	require.NoError(t, err)
	h.runNext(t)

	page, err := h.orch.List(ctx, crawler.RecordFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.NotZero(t, page.Items[0].ID)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].Payload.(CompletionEvent)
	require.True(t, ok)
	require.Equal(t, handle.TaskID, evt.TaskID)
	require.Equal(t, page.Items[0].ID, evt.RecordID)
	require.Equal(t, "kept", evt.Title)
}

func TestDeleteRemovesRecordAndMediaFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	for _, rel := range []string{"creative_collection/trip_1a2b3c4d.jpg", "creative_collection/trip_1a2b3c4d.mp4"} {
		_, err := h.media.PutObject(ctx, rel, "application/octet-stream", strings.NewReader("x"))
		require.NoError(t, err)
	}
	rec, err := h.records.AppendRecord(ctx, crawler.CollectionRecord{
		Title:          "trip",
		CoverURL:       crawler.ManagedFileURL("creative_collection/trip_1a2b3c4d.jpg"),
		SourcePlatform: crawler.PlatformDouyin,
		Status:         crawler.RecordStatusSuccess,
	})
	require.NoError(t, err)

	require.NoError(t, h.orch.Delete(ctx, rec.ID))
	require.False(t, h.media.Has("creative_collection/trip_1a2b3c4d.jpg"))
	require.False(t, h.media.Has("creative_collection/trip_1a2b3c4d.mp4"))

	_, err = h.orch.Get(ctx, rec.ID)
	require.ErrorIs(t, err, crawler.ErrRecordNotFound)
	require.ErrorIs(t, h.orch.Delete(ctx, rec.ID), crawler.ErrRecordNotFound)
}

func TestOwnedFiles(t *testing.T) {
	t.Parallel()

	require.Nil(t, ownedFiles(crawler.CollectionRecord{CoverURL: "https://p3.douyinpic.com/x.jpeg"}))
	require.Equal(t,
		[]string{"creative_collection/custom_1.png", "creative_collection/custom_1.jpg", "creative_collection/custom_1.mp4"},
		ownedFiles(crawler.CollectionRecord{CoverURL: crawler.ManagedFileURL("creative_collection/custom_1.png")}),
	)
}
