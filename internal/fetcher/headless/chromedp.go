// Package headless launches Chrome through chromedp and exposes each browser
// session as a page that crawlers can navigate and probe with selectors.
package headless

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/selector"
)

// Config controls browser launch and navigation.
type Config struct {
	MaxParallel int
	UserAgent   string
	// ChromePaths are local Chrome binaries tried before chromedp's own lookup.
	ChromePaths []string
	Proxy       string
	Headless    bool
	// NavigationTimeout bounds navigation plus the wait for <body>.
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// Page is one live browser tab.
type Page interface {
	selector.Probe
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Close()
}

// Opener starts browser sessions.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// DefaultChromePaths lists well-known Chrome locations for the host OS.
func DefaultChromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	}
}

// Browser implements Opener using chromedp.
type Browser struct {
	cfg     Config
	limiter chan struct{}
	logger  *zap.Logger
}

// NewChromedp creates a Browser.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 40 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.ChromePaths == nil {
		cfg.ChromePaths = DefaultChromePaths()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{cfg: cfg, limiter: limiter, logger: logger.Named("chromedp")}, nil
}

type launchStep struct {
	name string
	opts []chromedp.ExecAllocatorOption
}

func hardenedFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-zygote", true),
		chromedp.NoFirstRun,
		chromedp.Flag("enable-automation", false),
	}
}

// launchPlan returns the ordered launch attempts: a local Chrome, chromedp's
// own lookup with hardened flags, then a bare launch.
func (b *Browser) launchPlan() []launchStep {
	base := func(extra ...chromedp.ExecAllocatorOption) []chromedp.ExecAllocatorOption {
		opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.Flag("headless", b.cfg.Headless))
		if b.cfg.Proxy != "" {
			opts = append(opts, chromedp.ProxyServer(b.cfg.Proxy))
		}
		if b.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
		}
		return append(opts, extra...)
	}

	var plan []launchStep
	if path := b.localChrome(); path != "" {
		plan = append(plan, launchStep{
			name: "local",
			opts: base(append(hardenedFlags(), chromedp.ExecPath(path))...),
		})
	}
	plan = append(plan,
		launchStep{name: "bundled", opts: base(hardenedFlags()...)},
		launchStep{name: "bare", opts: base()},
	)
	return plan
}

func (b *Browser) localChrome() string {
	for _, p := range b.cfg.ChromePaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Open launches a browser following the launch plan and returns its first tab.
func (b *Browser) Open(ctx context.Context) (Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	var errs []error
	for _, step := range b.launchPlan() {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), step.opts...)
		tabCtx, tabCancel := chromedp.NewContext(allocCtx)
		err := startBrowser(ctx, func() error { return chromedp.Run(tabCtx) }, b.cfg.NavigationTimeout, func() {
			tabCancel()
			allocCancel()
		})
		if err == nil {
			b.logger.Debug("browser launched", zap.String("strategy", step.name))
			s := &Session{
				ctx:    tabCtx,
				cfg:    b.cfg,
				meta:   &responseMeta{},
				logger: b.logger,
				cancel: func() {
					tabCancel()
					allocCancel()
				},
				release: b.release,
			}
			chromedp.ListenTarget(tabCtx, s.meta.captureEvent)
			return s, nil
		}
		tabCancel()
		allocCancel()
		b.logger.Warn("browser launch failed", zap.String("strategy", step.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	b.release()
	return nil, fmt.Errorf("launch browser: %w", errors.Join(errs...))
}

// startBrowser performs the first Run, which must happen on the tab context
// itself: chromedp allocates the browser process under that Run's context, so
// a deadline there would kill Chrome once the launch returns. The launch bound
// is enforced by calling abort instead.
func startBrowser(ctx context.Context, run func() error, timeout time.Duration, abort func()) error {
	done := make(chan error, 1)
	go func() { done <- run() }()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case err := <-done:
		return err
	case <-expired:
		abort()
		<-done
		return fmt.Errorf("browser start exceeded %s", timeout)
	case <-ctx.Done():
		abort()
		<-done
		return ctx.Err()
	}
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// Session is a launched browser with a single tab.
type Session struct {
	ctx     context.Context
	cfg     Config
	meta    *responseMeta
	logger  *zap.Logger
	cancel  func()
	release func()
	once    sync.Once
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.release()
	})
}

// run executes actions on the tab, aborting when either the session or ctx
// ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url, waits for <body> and then settles.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	err := s.run(navCtx,
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status := s.meta.status(); status >= 400 {
		s.logger.Warn("document returned error status", zap.String("url", url), zap.Int("status", status))
	}
	if s.cfg.SettleDelay > 0 {
		if err := selector.Sleep(ctx, s.cfg.SettleDelay); err != nil {
			return fmt.Errorf("settle: %w", err)
		}
	}
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Location returns the current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

type responseMeta struct {
	mu   sync.RWMutex
	code int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}
