// Package server builds the collector service from configuration and runs it:
// HTTP API, worker pool, stores, media, notifications and progress sinks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/api"
	"github.com/JakeFAU/creative-collector/internal/clock/system"
	"github.com/JakeFAU/creative-collector/internal/config"
	"github.com/JakeFAU/creative-collector/internal/cover"
	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/creative-collector/internal/fetcher/colly"
	"github.com/JakeFAU/creative-collector/internal/fetcher/headless"
	"github.com/JakeFAU/creative-collector/internal/hash/sha256"
	idgen "github.com/JakeFAU/creative-collector/internal/id/uuid"
	"github.com/JakeFAU/creative-collector/internal/logging"
	"github.com/JakeFAU/creative-collector/internal/media"
	"github.com/JakeFAU/creative-collector/internal/orchestrator"
	"github.com/JakeFAU/creative-collector/internal/platform/douyin"
	"github.com/JakeFAU/creative-collector/internal/platform/pagecrawl"
	"github.com/JakeFAU/creative-collector/internal/platform/toutiao"
	"github.com/JakeFAU/creative-collector/internal/policy/ratelimit"
	"github.com/JakeFAU/creative-collector/internal/progress"
	progresssinks "github.com/JakeFAU/creative-collector/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/creative-collector/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/creative-collector/internal/queue/memory"
	"github.com/JakeFAU/creative-collector/internal/selector"
	gcsstorage "github.com/JakeFAU/creative-collector/internal/storage/gcs"
	localstorage "github.com/JakeFAU/creative-collector/internal/storage/local"
	memoryStorage "github.com/JakeFAU/creative-collector/internal/storage/memory"
	mongostore "github.com/JakeFAU/creative-collector/internal/storage/mongo"
	pgstore "github.com/JakeFAU/creative-collector/internal/storage/postgres"
	"github.com/JakeFAU/creative-collector/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	apiServer    *api.Server
	orchestrator *orchestrator.Orchestrator
	dispatch     *dispatcher.Dispatcher
	queue        *queueMemory.Queue
	progressHub  *progress.Hub

	media        crawler.MediaStore
	tasks        crawler.TaskStore
	records      crawler.RecordStore
	history      store.HistoryRepository
	publisher    crawler.Publisher
	pgPool       *pgxpool.Pool
	mongoClient  *mongo.Client
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher

	closeOnce sync.Once
}

// NewApp creates an App shell; Build fills in the dependencies.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("task_store", cfg.Storage.Tasks),
		zap.String("record_store", cfg.Storage.Records),
		zap.String("media_backend", cfg.Media.Backend),
		zap.Int("workers", cfg.Workers.Count),
	)
	return &App{cfg: cfg, logger: logger}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Orchestrator exposes the task orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Run starts the worker pool and HTTP server and blocks until ctx is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	grace := a.cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close releases every client the app opened. It is safe to call twice.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     "creative-collector",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := NewApp(cfg, logger)
	app.logger.Info("building application dependencies")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"media store", app.setupMedia},
		{"database", app.setupDatabase},
		{"stores", app.setupStores},
		{"publisher", app.setupPublisher},
		{"progress", app.setupProgress},
		{"orchestrator", app.setupOrchestrator},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("%s init failed: %w", step.name, err)
		}
	}

	app.apiServer = api.NewServer(app.orchestrator, app.media, app.history, api.Options{
		APIKey:         cfg.APIKey(),
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          app.ready,
	}, logger)
	return app, nil
}

func (a *App) setupMedia(ctx context.Context) error {
	switch a.cfg.Media.Backend {
	case config.MediaGCS:
		a.logger.Info("using GCS media backend", zap.String("bucket", a.cfg.Media.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Media.GCSBucket,
			Prefix: a.cfg.Media.GCSPrefix,
		})
		if err != nil {
			return err
		}
		a.media = blobs
	case config.MediaLocal:
		a.logger.Info("using local media backend", zap.String("path", a.cfg.Media.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Media.LocalDir})
		if err != nil {
			return err
		}
		a.media = blobs
	default:
		a.logger.Info("using in-memory media backend")
		a.media = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.UsesPostgres() {
		pgCfg := a.postgresConfig()
		pool, err := pgstore.NewPool(ctx, pgCfg)
		if err != nil {
			return err
		}
		a.pgPool = pool
		if a.cfg.Postgres.AutoMigrate {
			if err := pgstore.EnsureSchema(ctx, pool, pgCfg); err != nil {
				return err
			}
		}
		a.logger.Info("postgres connected",
			zap.String("tasks_table", pgCfg.TasksTable),
			zap.String("records_table", pgCfg.RecordsTable),
		)
	}
	if a.cfg.Storage.Records == config.StoreMongo {
		client, err := mongostore.Connect(ctx, mongostore.Config{
			URI:     a.cfg.Mongo.URI,
			Timeout: a.cfg.Mongo.Timeout,
		})
		if err != nil {
			return err
		}
		a.mongoClient = client
		a.logger.Info("mongo connected", zap.String("database", a.cfg.Mongo.Database))
	}
	return nil
}

func (a *App) postgresConfig() pgstore.Config {
	return pgstore.Config{
		DSN:             a.cfg.Postgres.DSN,
		TasksTable:      a.cfg.Postgres.TasksTable,
		RecordsTable:    a.cfg.Postgres.RecordsTable,
		MaxConns:        a.cfg.Postgres.MaxConns,
		MinConns:        a.cfg.Postgres.MinConns,
		MaxConnLifetime: a.cfg.Postgres.MaxConnLifetime,
	}
}

func (a *App) setupStores(ctx context.Context) error {
	clock := system.New()
	var err error
	switch a.cfg.Storage.Tasks {
	case config.StorePostgres:
		a.tasks, err = pgstore.NewTaskStore(a.pgPool, a.cfg.Postgres.TasksTable)
	default:
		opts := []memoryStorage.TaskOption{memoryStorage.WithTaskClock(clock)}
		if dir := a.cfg.Storage.StateDir; dir != "" {
			opts = append(opts, memoryStorage.WithTaskPersister(
				localstorage.NewSnapshotFile[memoryStorage.TaskSnapshot](filepath.Join(dir, "tasks.json")),
			))
		}
		a.tasks, err = memoryStorage.NewTaskStore(ctx, opts...)
	}
	if err != nil {
		return fmt.Errorf("task store: %w", err)
	}

	switch a.cfg.Storage.Records {
	case config.StorePostgres:
		a.records, err = pgstore.NewRecordStore(a.pgPool, a.cfg.Postgres.RecordsTable)
	case config.StoreMongo:
		var rs *mongostore.RecordStore
		rs, err = mongostore.NewRecordStore(a.mongoClient.Database(a.cfg.Mongo.Database), a.cfg.Mongo.Collection)
		if err == nil {
			err = rs.EnsureIndexes(ctx)
			a.records = rs
		}
	default:
		var persister memoryStorage.Persister[memoryStorage.RecordSnapshot]
		if dir := a.cfg.Storage.StateDir; dir != "" {
			persister = localstorage.NewSnapshotFile[memoryStorage.RecordSnapshot](filepath.Join(dir, "records.json"))
		}
		a.records, err = memoryStorage.NewRecordStore(ctx, persister)
	}
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}

	if !a.cfg.Progress.History {
		return nil
	}
	if a.pgPool != nil {
		a.history, err = pgstore.NewHistoryStore(a.pgPool)
		if err != nil {
			return fmt.Errorf("history store: %w", err)
		}
		return nil
	}
	a.history = memoryStorage.NewHistoryStore()
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		a.logger.Info("no pubsub topic configured, completion events disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client: %w", err)
	}
	a.pubsubClient = client
	pub, err := gcppublisher.New(client, a.cfg.PubSub.Topic)
	if err != nil {
		return err
	}
	a.gcpPublisher = pub
	a.publisher = pub
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	sinkList := []progress.Sink{progresssinks.NewLogSink(a.logger.Named("progress_log"))}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		sinkList = append(sinkList, promSink)
	case errors.As(err, &already):
		a.logger.Warn("progress collectors already registered, skipping prometheus sink")
	default:
		return err
	}
	if a.history != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.history, a.logger.Named("progress_store")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

func (a *App) setupOrchestrator(context.Context) error {
	cfg := a.cfg
	clock := system.New()
	ids := idgen.New()

	var opener headless.Opener = headless.NewDisabled()
	if cfg.Browser.Enabled {
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Browser.MaxParallel,
			UserAgent:         cfg.Browser.UserAgent,
			ChromePaths:       cfg.Browser.ChromePaths,
			Proxy:             cfg.Browser.Proxy,
			Headless:          cfg.Browser.Headless,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			SettleDelay:       cfg.Browser.SettleDelay,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("browser: %w", err)
		}
		opener = browser
	} else {
		a.logger.Warn("crawl browser disabled; platform crawls will fail")
	}

	extractorOpts := []media.Option{
		media.WithFinder(media.Finder{Root: cfg.Media.Root}),
		media.WithTimeout(cfg.Media.Timeout),
		media.WithLogger(a.logger),
	}
	if cfg.Media.FFmpeg != "" {
		extractorOpts = append(extractorOpts, media.WithBinary(cfg.Media.FFmpeg))
	}
	covers := cover.NewChain(cover.Config{
		Downloader: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Download.UserAgent,
			Timeout:   cfg.Download.Timeout,
			MaxBytes:  cfg.Download.MaxBytes,
			Retry: collyfetcher.RetryConfig{
				MaxAttempts: cfg.Download.MaxAttempts,
				BaseDelay:   cfg.Download.BaseDelay,
				MaxDelay:    cfg.Download.MaxDelay,
			},
		}, a.logger),
		Frames:   media.NewExtractor(extractorOpts...),
		Store:    a.media,
		Digester: sha256.New(),
		Clock:    clock,
		WorkDir:  cfg.Media.WorkDir,
		Logger:   a.logger,
	})

	crawlOpts := []pagecrawl.Option{
		pagecrawl.WithLimiter(newLimiter(cfg.RateLimit)),
		pagecrawl.WithLogger(a.logger),
	}
	if path := cfg.Selectors.OverridesPath; path != "" {
		ov, err := selector.LoadOverrides(path)
		if err != nil {
			return fmt.Errorf("selector overrides: %w", err)
		}
		a.logger.Info("selector overrides loaded", zap.String("path", path), zap.Int("scopes", len(ov)))
		crawlOpts = append(crawlOpts, pagecrawl.WithOverrides(ov))
	}

	a.queue = queueMemory.NewQueue(cfg.Workers.QueueDepth)
	var emitter progress.Emitter = progress.Discard{}
	if a.progressHub != nil {
		emitter = a.progressHub
	}
	orch, err := orchestrator.New(orchestrator.Config{
		TaskTimeout:    cfg.Workers.TaskTimeout,
		PersistTimeout: cfg.Workers.PersistTimeout,
		Topic:          cfg.PubSub.Topic,
	}, orchestrator.Deps{
		Tasks:   a.tasks,
		Records: a.records,
		Media:   a.media,
		Queue:   a.queue,
		Crawlers: []crawler.Crawler{
			douyin.New(opener, covers, crawlOpts...),
			toutiao.New(opener, covers, crawlOpts...),
		},
		Covers:    cover.NewPlaceholder(a.media, ids, cfg.Media.FontPaths, a.logger),
		Publisher: a.publisher,
		Progress:  emitter,
		IDs:       ids,
		Clock:     clock,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	a.orchestrator = orch
	a.dispatch = dispatcher.NewPool(a.queue, orch, cfg.Workers.Count, a.logger)
	return nil
}

func newLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	rules := make(map[string]ratelimit.Rule, len(cfg.Platforms))
	for platform, r := range cfg.Platforms {
		rules[platform] = ratelimit.Rule{RPS: r.RPS, Burst: r.Burst}
	}
	return ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.DefaultRPS,
		DefaultBurst: cfg.DefaultBurst,
		Platforms:    rules,
	})
}

// ready pings the databases the app depends on.
func (a *App) ready(ctx context.Context) error {
	if a.pgPool != nil {
		if err := a.pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}
