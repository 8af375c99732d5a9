// Package collyfetcher downloads source videos with gocolly, presenting
// browser-like headers so CDNs do not answer 403.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// DefaultUserAgent mimics a desktop Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultMaxBytes caps a single video download.
const DefaultMaxBytes int64 = 512 << 20

// ErrTooLarge is returned when a response reaches the body cap. colly
// truncates at the cap, so a body of exactly that size is treated as cut off.
var ErrTooLarge = errors.New("download exceeds size limit")

// Config controls download behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBytes bounds the body colly buffers in memory before it is saved.
	MaxBytes int64
	Retry    RetryConfig
}

// Request describes one file download.
type Request struct {
	URL     string
	Referer string
	Dest    string
}

// Fetcher downloads media files to local disk.
type Fetcher struct {
	cfg           Config
	retry         *RetryPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// StatusError is an HTTP response outside 2xx.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	c := colly.NewCollector(colly.Async(false), colly.MaxBodySize(int(cfg.MaxBytes)), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		retry:         NewRetryPolicy(cfg.Retry),
		logger:        logger.Named("downloader"),
		baseCollector: c,
	}
}

// Download fetches req.URL into req.Dest and returns the byte count. The file
// is written under a temporary name and renamed once complete.
func (f *Fetcher) Download(ctx context.Context, req Request) (int64, error) {
	target := crawler.NormalizeMediaURL(req.URL)
	if target == "" {
		return 0, errors.New("download url is empty")
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	req.URL = target

	for attempt := 0; ; attempt++ {
		n, err := f.downloadOnce(ctx, req)
		if err == nil {
			f.logger.Info("video downloaded",
				zap.String("url", target),
				zap.String("dest", req.Dest),
				zap.Int64("bytes", n),
			)
			return n, nil
		}
		if !f.retry.ShouldRetry(err, attempt+1) {
			return 0, err
		}
		wait := f.retry.Backoff(attempt)
		f.logger.Warn("download failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("download canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (f *Fetcher) downloadOnce(ctx context.Context, req Request) (int64, error) {
	var (
		written  int64
		fetchErr error
	)
	collector := f.buildCollector()
	tmp := req.Dest + ".part"
	f.configureCollectorHooks(ctx, collector, req, tmp, &written, &fetchErr)
	if err := f.runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if written == 0 {
		_ = os.Remove(tmp)
		return 0, errors.New("empty response body")
	}
	if err := os.Rename(tmp, req.Dest); err != nil {
		return 0, fmt.Errorf("finalize download: %w", err)
	}
	return written, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(newHTTPTransport())
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	ctx context.Context,
	hooks collectorHooks,
	req Request,
	tmp string,
	written *int64,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		setBrowserHeaders(r.Headers, f.cfg.UserAgent, req.Referer)
	})

	// The Visit goroutine can outlive a canceled download, so the hook checks
	// ctx itself and never leaves a .part file behind once the caller is gone.
	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = &StatusError{StatusCode: r.StatusCode}
			return
		}
		if err := ctx.Err(); err != nil {
			*fetchErr = err
			return
		}
		if int64(len(r.Body)) >= f.cfg.MaxBytes {
			*fetchErr = fmt.Errorf("%w: %d bytes", ErrTooLarge, f.cfg.MaxBytes)
			return
		}
		if err := r.Save(tmp); err != nil {
			*fetchErr = fmt.Errorf("save download: %w", err)
			return
		}
		if err := ctx.Err(); err != nil {
			_ = os.Remove(tmp)
			*fetchErr = err
			return
		}
		*written = int64(len(r.Body))
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			*fetchErr = &StatusError{StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly download canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func setBrowserHeaders(h *http.Header, userAgent, referer string) {
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.8,en-US;q=0.5,en;q=0.3")
	h.Set("Connection", "keep-alive")
	if referer != "" {
		h.Set("Referer", referer)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
