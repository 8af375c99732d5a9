// Package cover resolves a cover image for collected media. Stages run in a
// fixed order and each one is allowed to fail: download the video and grab its
// first frame, scrape a cover from the page, or give up with an empty cover.
package cover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	collyfetcher "github.com/JakeFAU/creative-collector/internal/fetcher/colly"
)

// Downloader fetches a remote file to local disk.
type Downloader interface {
	Download(ctx context.Context, req collyfetcher.Request) (int64, error)
}

// FrameExtractor writes the first frame of a video to an image file.
type FrameExtractor interface {
	ExtractFirstFrame(ctx context.Context, video, out string, overwrite bool) error
}

// Digester produces collision-resistant name suffixes.
type Digester interface {
	Digest(parts ...string) string
}

// Stage names which step produced the cover.
type Stage string

// Stages in fallback order.
const (
	StageFrame   Stage = "frame"
	StageScraped Stage = "scraped"
	StageEmpty   Stage = "empty"
)

// Input is what a crawler knows when it asks for a cover.
type Input struct {
	Title    string
	VideoURL string
	Referer  string
	// Scrape reads a cover URL from the live page; it may be nil.
	Scrape func(ctx context.Context) string
}

// Result is the outcome of the chain.
type Result struct {
	CoverURL string
	// VideoPath is the managed path of the stored video, empty when the
	// download did not happen.
	VideoPath string
	Stage     Stage
}

// Config wires the chain.
type Config struct {
	Downloader Downloader
	Frames     FrameExtractor
	Store      crawler.MediaStore
	Digester   Digester
	Clock      crawler.Clock
	// WorkDir holds scratch files while ffmpeg runs.
	WorkDir string
	Logger  *zap.Logger
}

// Chain implements the cover fallback sequence.
type Chain struct {
	cfg    Config
	logger *zap.Logger
}

// NewChain builds a Chain.
func NewChain(cfg Config) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Chain{cfg: cfg, logger: logger.Named("cover")}
}

func (c *Chain) now() time.Time {
	if c.cfg.Clock != nil {
		return c.cfg.Clock.Now()
	}
	return time.Now().UTC()
}

// Resolve runs the stages in order. It never fails; the worst case is an
// empty cover.
func (c *Chain) Resolve(ctx context.Context, in Input) Result {
	var res Result
	if in.VideoURL != "" && c.cfg.Downloader != nil && c.cfg.Store != nil {
		coverURL, videoPath, err := c.fromVideo(ctx, in)
		if err == nil {
			res.CoverURL = coverURL
			res.VideoPath = videoPath
			res.Stage = StageFrame
			return res
		}
		c.logger.Warn("video cover stage failed", zap.String("video_url", in.VideoURL), zap.Error(err))
	}

	if in.Scrape != nil {
		if u := crawler.NormalizeMediaURL(safeScrape(ctx, in.Scrape)); u != "" {
			res.CoverURL = u
			res.Stage = StageScraped
			return res
		}
	}
	res.Stage = StageEmpty
	return res
}

func safeScrape(ctx context.Context, scrape func(context.Context) string) (v string) {
	defer func() {
		if recover() != nil {
			v = ""
		}
	}()
	return scrape(ctx)
}

func (c *Chain) fromVideo(ctx context.Context, in Input) (string, string, error) {
	digest := ""
	if c.cfg.Digester != nil {
		digest = c.cfg.Digester.Digest(in.VideoURL, in.Title)
	}
	stem := crawler.SafeStem(in.Title, c.now(), digest)
	localVideo := filepath.Join(c.cfg.WorkDir, stem+".mp4")
	localCover := filepath.Join(c.cfg.WorkDir, stem+".jpg")
	defer func() {
		_ = os.Remove(localVideo)
		_ = os.Remove(localCover)
	}()

	if _, err := c.cfg.Downloader.Download(ctx, collyfetcher.Request{
		URL:     in.VideoURL,
		Referer: in.Referer,
		Dest:    localVideo,
	}); err != nil {
		return "", "", fmt.Errorf("download video: %w", err)
	}

	// Nothing is stored until the frame exists, so a failed stage leaves no
	// orphaned video behind the <stem>.jpg cover that record deletion keys on.
	if c.cfg.Frames == nil {
		return "", "", fmt.Errorf("no frame extractor configured")
	}
	if err := c.cfg.Frames.ExtractFirstFrame(ctx, localVideo, localCover, true); err != nil {
		return "", "", fmt.Errorf("extract first frame: %w", err)
	}
	coverPath := crawler.ManagedPath(crawler.MediaPrefix, stem+".jpg")
	if err := c.put(ctx, localCover, coverPath, "image/jpeg"); err != nil {
		return "", "", err
	}
	videoPath := crawler.ManagedPath(crawler.MediaPrefix, stem+".mp4")
	if err := c.put(ctx, localVideo, videoPath, "video/mp4"); err != nil {
		c.logger.Warn("video not stored, keeping extracted cover", zap.String("video", videoPath), zap.Error(err))
		videoPath = ""
	}
	c.logger.Info("cover extracted from video", zap.String("cover", coverPath))
	return crawler.ManagedFileURL(coverPath), videoPath, nil
}

func (c *Chain) put(ctx context.Context, local, rel, contentType string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := c.cfg.Store.PutObject(ctx, rel, contentType, f); err != nil {
		return fmt.Errorf("store %s: %w", rel, err)
	}
	return nil
}
