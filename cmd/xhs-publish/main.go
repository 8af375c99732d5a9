// Command xhs-publish uploads a local video to a Xiaohongshu creator account
// using a saved browser session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/config"
	"github.com/JakeFAU/creative-collector/internal/logging"
	"github.com/JakeFAU/creative-collector/internal/publish"
	"github.com/JakeFAU/creative-collector/internal/publish/playwright"
	"github.com/JakeFAU/creative-collector/internal/publish/xiaohongshu"
	"github.com/JakeFAU/creative-collector/internal/selector"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "xhs-publish: load env file: %v\n", err)
		os.Exit(1)
	}

	var (
		configPath   = flag.String("config", "", "path to config file")
		title        = flag.String("title", "", "post title")
		file         = flag.String("file", "", "video file to upload")
		tags         = flag.String("tags", "", "comma-separated topic tags")
		publishAt    = flag.String("publish-at", "", "schedule time ("+publish.ScheduleLayout+"), empty publishes now")
		account      = flag.String("account", "", "browser storage-state file (overrides config)")
		thumbnail    = flag.String("thumbnail", "", "optional cover image")
		headless     = flag.Bool("headless", false, "run the browser headless (overrides config)")
		proxy        = flag.String("proxy", "", "proxy server (overrides config)")
		validateOnly = flag.Bool("validate-only", false, "only check that the saved session is still logged in")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xhs-publish: load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     "xhs-publish",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xhs-publish: init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	accountFile := cfg.Publish.AccountFile
	if *account != "" {
		accountFile = *account
	}
	proxyServer := cfg.Publish.Proxy
	if *proxy != "" {
		proxyServer = *proxy
	}

	headlessMode := cfg.Publish.Headless
	if flagSet("headless") {
		headlessMode = *headless
	}

	opts := []xiaohongshu.Option{xiaohongshu.WithLogger(logger)}
	if cfg.Publish.Overrides != "" {
		ov, err := selector.LoadOverrides(cfg.Publish.Overrides)
		if err != nil {
			logger.Fatal("load selector overrides", zap.Error(err))
		}
		opts = append(opts, xiaohongshu.WithOverrides(ov))
	}
	launcher := playwright.New(playwright.Config{
		ChromePaths: cfg.Publish.ChromePaths,
		Headless:    headlessMode,
		Proxy:       proxyServer,
	}, logger)
	publisher := xiaohongshu.New(launcher, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Publish.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Publish.Timeout)
		defer cancel()
	}

	if *validateOnly {
		if err := publisher.ValidateSession(ctx, accountFile); err != nil {
			logger.Error("session invalid", zap.String("account", accountFile), zap.Error(err))
			os.Exit(1)
		}
		logger.Info("session valid", zap.String("account", accountFile))
		return
	}

	job := publish.UploadJob{
		Title:         *title,
		FilePath:      *file,
		Tags:          splitTags(*tags),
		AccountFile:   accountFile,
		ThumbnailPath: *thumbnail,
	}
	if *publishAt != "" {
		at, err := time.ParseInLocation(publish.ScheduleLayout, *publishAt, time.Local)
		if err != nil {
			logger.Fatal("parse publish-at", zap.String("value", *publishAt), zap.Error(err))
		}
		job.PublishAt = &at
	}

	res, err := publisher.Publish(ctx, job)
	fields := []zap.Field{
		zap.String("state", string(res.State)),
		zap.Any("trace", res.Trace),
		zap.Bool("upload_confirmed", res.UploadConfirmed),
		zap.Duration("duration", res.Duration),
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	if err != nil {
		logger.Error("publish failed", append(fields, zap.Error(err))...)
		os.Exit(1)
	}
	if res.State == publish.StateFailed {
		logger.Error("publish failed", fields...)
		os.Exit(1)
	}
	logger.Info("publish finished", fields...)
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
