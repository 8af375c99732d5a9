package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// ExtractionError reports an ffmpeg run that did not produce a frame.
type ExtractionError struct {
	Video  string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract frame from %s: %v", e.Video, e.Err)
	}
	return fmt.Sprintf("extract frame from %s: no output produced", e.Video)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor runs ffmpeg to extract frames.
type Extractor struct {
	finder  Finder
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	binary string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFinder sets the discovery chain.
func WithFinder(f Finder) Option {
	return func(e *Extractor) { e.finder = f }
}

// WithBinary pins the ffmpeg path and skips discovery.
func WithBinary(path string) Option {
	return func(e *Extractor) { e.binary = path }
}

// WithTimeout bounds each ffmpeg run.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor builds an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{timeout: defaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("ffmpeg")
	return e
}

// Binary resolves (and caches) the ffmpeg executable.
func (e *Extractor) Binary() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binary != "" {
		return e.binary, nil
	}
	p, strategy, err := e.finder.Find()
	if err != nil {
		return "", err
	}
	e.logger.Info("ffmpeg located", zap.String("path", p), zap.String("strategy", strategy))
	e.binary = p
	return p, nil
}

// ExtractFirstFrame writes the frame at 0.1s of video to out. When out
// already exists and overwrite is false the call is a no-op.
func (e *Extractor) ExtractFirstFrame(ctx context.Context, video, out string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(out); err == nil {
			return nil
		}
	}
	bin, err := e.Binary()
	if err != nil {
		return err
	}

	flag := "-n"
	if overwrite {
		flag = "-y"
	}
	args := []string{flag, "-ss", "0.1", "-i", video, "-frames:v", "1", "-vf", "scale=iw:ih", out}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var buf bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	start := time.Now()
	runErr := cmd.Run()
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("timed out after %s: %w", e.timeout, runCtx.Err())
		}
		e.logger.Warn("frame extraction failed",
			zap.String("video", video),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(runErr),
		)
		return &ExtractionError{Video: video, Output: buf.String(), Err: runErr}
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return &ExtractionError{Video: video, Output: buf.String()}
	}
	e.logger.Debug("frame extracted", zap.String("out", out), zap.Duration("elapsed", time.Since(start)))
	return nil
}
