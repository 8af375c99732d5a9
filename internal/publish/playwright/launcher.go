// Package playwright runs publish flows on a Playwright-driven Chromium.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/fetcher/headless"
	"github.com/JakeFAU/creative-collector/internal/publish"
)

// Config controls browser launch.
type Config struct {
	// ChromePaths are local Chrome binaries tried before the bundled browser.
	ChromePaths []string
	Headless    bool
	Proxy       string
	// ActionTimeout bounds each click, fill and navigation.
	ActionTimeout time.Duration
	Viewport      pw.Size
}

// HardenedArgs are passed to every launch attempt.
var HardenedArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--no-first-run",
	"--no-zygote",
	"--disable-accelerated-2d-canvas",
	"--disable-blink-features=AutomationControlled",
}

// Launcher implements publish.Launcher.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Launcher.
func New(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.ChromePaths == nil {
		cfg.ChromePaths = headless.DefaultChromePaths()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.Viewport.Width == 0 || cfg.Viewport.Height == 0 {
		cfg.Viewport = pw.Size{Width: 1600, Height: 900}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("playwright")}
}

type attempt struct {
	name string
	opts pw.BrowserTypeLaunchOptions
}

// launchPlan orders the attempts: a local Chrome, the Playwright-bundled
// Chromium, then the system Chrome channel.
func (l *Launcher) launchPlan() []attempt {
	base := func() pw.BrowserTypeLaunchOptions {
		opts := pw.BrowserTypeLaunchOptions{
			Headless: pw.Bool(l.cfg.Headless),
			Args:     append([]string(nil), HardenedArgs...),
		}
		if l.cfg.Proxy != "" {
			opts.Proxy = &pw.Proxy{Server: l.cfg.Proxy}
		}
		return opts
	}
	var plan []attempt
	if path := l.localChrome(); path != "" {
		opts := base()
		opts.ExecutablePath = pw.String(path)
		plan = append(plan, attempt{name: "local", opts: opts})
	}
	plan = append(plan, attempt{name: "bundled", opts: base()})
	channel := base()
	channel.Channel = pw.String("chrome")
	plan = append(plan, attempt{name: "channel", opts: channel})
	return plan
}

func (l *Launcher) localChrome() string {
	for _, p := range l.cfg.ChromePaths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Launch starts Chromium, loads storageState into a fresh context and opens
// one page.
func (l *Launcher) Launch(ctx context.Context, storageState string) (publish.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	driver, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var (
		browser pw.Browser
		errs    []error
	)
	for _, a := range l.launchPlan() {
		browser, err = driver.Chromium.Launch(a.opts)
		if err == nil {
			l.logger.Debug("browser launched", zap.String("via", a.name))
			break
		}
		l.logger.Warn("browser launch failed", zap.String("via", a.name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
	}
	if browser == nil {
		_ = driver.Stop()
		return nil, fmt.Errorf("launch chromium: %w", errors.Join(errs...))
	}

	opts := pw.BrowserNewContextOptions{
		Viewport:   &l.cfg.Viewport,
		Locale:     pw.String("zh-CN"),
		TimezoneId: pw.String("Asia/Shanghai"),
	}
	if storageState != "" {
		if _, err := os.Stat(storageState); err == nil {
			opts.StorageStatePath = pw.String(storageState)
		}
	}
	bctx, err := browser.NewContext(opts)
	if err != nil {
		_ = browser.Close()
		_ = driver.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(l.cfg.ActionTimeout.Milliseconds()))
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = driver.Stop()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &session{
		driver:  driver,
		browser: browser,
		bctx:    bctx,
		page:    &Page{page: page},
	}, nil
}

type session struct {
	driver  *pw.Playwright
	browser pw.Browser
	bctx    pw.BrowserContext
	page    *Page
}

func (s *session) Page() publish.Page { return s.page }

func (s *session) SaveStorageState(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.bctx.StorageState(path); err != nil {
		return fmt.Errorf("save storage state: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return errors.Join(s.bctx.Close(), s.browser.Close(), s.driver.Stop())
}
