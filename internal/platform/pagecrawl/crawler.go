// Package pagecrawl is the browser crawl shared by every platform: open a
// session, load the page, read metadata through selector tables and resolve a
// cover. Platforms differ only in their Profile.
package pagecrawl

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/cover"
	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/fetcher/headless"
	"github.com/JakeFAU/creative-collector/internal/metrics"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

// Tables are the selector tables for each extracted field.
type Tables struct {
	Title    selector.Table
	Tags     selector.Table
	Video    selector.Table
	Cover    selector.Table
	Subtitle selector.Table
}

// Profile describes one platform.
type Profile struct {
	Platform crawler.Platform
	// Hosts are accepted URL substrings.
	Hosts []string
	// Brand marks a generic document.title that must not become the title.
	Brand   string
	Referer string
	Tables  Tables
}

// CoverResolver produces a cover for a crawled page.
type CoverResolver interface {
	Resolve(ctx context.Context, in cover.Input) cover.Result
}

// Waiter paces crawls per platform.
type Waiter interface {
	Wait(ctx context.Context, platform string) error
}

// Crawler implements crawler.Crawler for a Profile.
type Crawler struct {
	profile Profile
	opener  headless.Opener
	covers  CoverResolver
	limiter Waiter
	logger  *zap.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLimiter paces crawls.
func WithLimiter(w Waiter) Option {
	return func(c *Crawler) { c.limiter = w }
}

// WithOverrides replaces selector tables from an override document.
func WithOverrides(o selector.Overrides) Option {
	return func(c *Crawler) {
		t := c.profile.Tables
		scope := string(c.profile.Platform)
		t.Title = o.Apply(scope, t.Title)
		t.Tags = o.Apply(scope, t.Tags)
		t.Video = o.Apply(scope, t.Video)
		t.Cover = o.Apply(scope, t.Cover)
		t.Subtitle = o.Apply(scope, t.Subtitle)
		c.profile.Tables = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Crawler.
func New(profile Profile, opener headless.Opener, covers CoverResolver, opts ...Option) *Crawler {
	c := &Crawler{
		profile: profile,
		opener:  opener,
		covers:  covers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named(string(profile.Platform))
	return c
}

// Platform returns the platform this crawler serves.
func (c *Crawler) Platform() crawler.Platform {
	return c.profile.Platform
}

// Profile returns the effective profile (after overrides).
func (c *Crawler) Profile() Profile {
	return c.profile
}

// Validate reports whether url belongs to the platform.
func (c *Crawler) Validate(url string) error {
	for _, h := range c.profile.Hosts {
		if strings.Contains(url, h) {
			return nil
		}
	}
	return crawler.UnsupportedURL(c.profile.Platform, url)
}

// Crawl extracts RawMedia from url. Browser failures are returned as
// *crawler.CrawlError; field-level extraction failures yield empty values.
func (c *Crawler) Crawl(ctx context.Context, url string) (crawler.RawMedia, error) {
	if err := c.Validate(url); err != nil {
		return crawler.RawMedia{}, err
	}
	wrap := func(err error) error {
		return &crawler.CrawlError{Platform: c.profile.Platform, URL: url, Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, string(c.profile.Platform)); err != nil {
			return crawler.RawMedia{}, wrap(err)
		}
	}

	start := time.Now()
	page, err := c.opener.Open(ctx)
	if err != nil {
		return crawler.RawMedia{}, wrap(err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, url); err != nil {
		return crawler.RawMedia{}, wrap(err)
	}
	finalURL, err := page.Location(ctx)
	if err != nil || finalURL == "" {
		finalURL = url
	}
	c.logger.Info("page loaded", zap.String("url", finalURL))

	t := c.profile.Tables
	media := crawler.RawMedia{
		Title:    c.title(ctx, page),
		Tags:     normalizeTags(selector.Collect(ctx, page, t.Tags)),
		VideoURL: finalURL,
		Subtitle: strings.Join(selector.Collect(ctx, page, t.Subtitle), "\n"),
	}
	if media.Tags == nil {
		media.Tags = []string{}
	}

	src := selector.Read(ctx, page, t.Video)
	if strings.HasPrefix(src, "blob:") {
		src = ""
	}
	res := c.covers.Resolve(ctx, cover.Input{
		Title:    media.Title,
		VideoURL: src,
		Referer:  c.profile.Referer,
		Scrape: func(ctx context.Context) string {
			return selector.Read(ctx, page, t.Cover)
		},
	})
	media.CoverURL = res.CoverURL
	metrics.ObserveCoverStage(string(res.Stage))
	metrics.ObserveCrawl(string(c.profile.Platform), time.Since(start))

	c.logger.Info("crawl finished",
		zap.String("title", media.Title),
		zap.Int("tags", len(media.Tags)),
		zap.String("cover_stage", string(res.Stage)),
	)
	return media, nil
}

func (c *Crawler) title(ctx context.Context, page headless.Page) string {
	if v := selector.Read(ctx, page, c.profile.Tables.Title); v != "" {
		return v
	}
	title, err := page.Title(ctx)
	if err != nil {
		return ""
	}
	title = strings.TrimSpace(title)
	if title == "" || (c.profile.Brand != "" && strings.Contains(title, c.profile.Brand)) {
		return ""
	}
	return title
}

func normalizeTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		out = append(out, strings.TrimLeft(strings.TrimSpace(t), "#"))
	}
	return crawler.DedupeStrings(out)
}
