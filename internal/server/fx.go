// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitelens/sitelens/internal/api"
	"github.com/sitelens/sitelens/internal/artifact"
	artifactgcs "github.com/sitelens/sitelens/internal/artifact/gcs"
	artifactlocal "github.com/sitelens/sitelens/internal/artifact/local"
	artifactmem "github.com/sitelens/sitelens/internal/artifact/memory"
	"github.com/sitelens/sitelens/internal/audit"
	"github.com/sitelens/sitelens/internal/capture"
	"github.com/sitelens/sitelens/internal/clock/system"
	"github.com/sitelens/sitelens/internal/config"
	"github.com/sitelens/sitelens/internal/crawl"
	idgen "github.com/sitelens/sitelens/internal/id/uuid"
	"github.com/sitelens/sitelens/internal/logging"
	"github.com/sitelens/sitelens/internal/metrics"
	"github.com/sitelens/sitelens/internal/notify"
	notifypubsub "github.com/sitelens/sitelens/internal/notify/pubsub"
	"github.com/sitelens/sitelens/internal/pipeline"
	"github.com/sitelens/sitelens/internal/progress"
	progresssinks "github.com/sitelens/sitelens/internal/progress/sinks"
	"github.com/sitelens/sitelens/internal/store"
	storemem "github.com/sitelens/sitelens/internal/store/memory"
	pgstore "github.com/sitelens/sitelens/internal/store/postgres"
	"github.com/sitelens/sitelens/internal/telemetry"
	"github.com/sitelens/sitelens/internal/urlnorm"
)

const (
	shutdownTimeout = 10 * time.Second
	// drainTimeout bounds how long workers may keep finishing queued jobs
	// after shutdown starts. Past it, in-flight stages are canceled and the
	// affected jobs fail with the cancellation recorded.
	drainTimeout = 60 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	manager   *pipeline.Manager
	queue     *pipeline.Queue
	dispatch  *pipeline.Dispatcher
	hub       *progress.Hub

	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	gcsClient    *storage.Client
	pgStore      *pgstore.Store

	tracerShutdown func(context.Context) error
	meterShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Log only non-sensitive config fields
	type sanitizedConfig struct {
		ServerPort       int    `json:"server_port"`
		StoreDriver      string `json:"store_driver"`
		ArtifactsBackend string `json:"artifacts_backend"`
		Workers          int    `json:"workers"`
		QueueDepth       int    `json:"queue_depth"`
	}
	safeCfg := sanitizedConfig{
		ServerPort:       cfg.Server.Port,
		StoreDriver:      cfg.Store.Driver,
		ArtifactsBackend: cfg.Artifacts.Backend,
		Workers:          cfg.Pipeline.Workers,
		QueueDepth:       cfg.Pipeline.QueueDepth,
	}
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The dispatcher gets its own context so a shutdown signal does not
	// abort jobs mid-stage; cancellation happens only if draining exceeds
	// its budget.
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Pipeline.Workers))
		a.dispatch.Run(dispatchCtx)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-time.After(drainTimeout):
		a.logger.Warn("drain timeout exceeded, canceling in-flight jobs")
		dispatchCancel()
		<-dispatchDone
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	return a.Close(closeCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
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
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.meterShutdown != nil {
		if err := a.meterShutdown(ctx); err != nil {
			a.logger.Warn("meter shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	if cfg.Telemetry.Enabled {
		tp, mp, initErr := telemetry.Init(ctx, cfg.Telemetry)
		if initErr != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", initErr)
		}
		app.tracerShutdown = tp.Shutdown
		app.meterShutdown = mp.Shutdown
	}

	app.logger.Info("building application dependencies")

	repo, stats, err := setupStore(ctx, app)
	if err != nil {
		return nil, err
	}

	artifacts, err := setupArtifacts(ctx, app)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.hub, err = setupProgress(ctx, app, stats)
	if err != nil {
		return nil, err
	}

	norm, err := urlnorm.New(cfg.Crawl.ExcludePatterns, cfg.Crawl.BlockedHosts)
	if err != nil {
		return nil, fmt.Errorf("url normalizer init failed: %w", err)
	}

	clk := system.New()
	engine := crawl.NewEngine(
		crawl.NewCollyFetcher(crawl.FetcherConfig{
			UserAgent: cfg.Crawl.UserAgent,
			Timeout:   cfg.Crawl.PageTimeout(),
		}),
		norm,
		crawl.NewRobotsPolicy(cfg.Crawl.RespectRobots, cfg.Crawl.UserAgent, logger.Named("robots")),
		crawl.NewPacer(cfg.Crawl.RequestsPerSecond, 1),
		clk,
		logger.Named("crawl"),
	)
	app.logger.Info("crawl engine initialized",
		zap.String("user_agent", cfg.Crawl.UserAgent),
		zap.Bool("respect_robots", cfg.Crawl.RespectRobots),
		zap.Float64("requests_per_second", cfg.Crawl.RequestsPerSecond),
	)

	stages := pipeline.NewStageSet(stageConfig(cfg), engine, artifacts, clk, logger.Named("stages"))

	app.queue = pipeline.NewQueue(cfg.Pipeline.QueueDepth)
	runner := pipeline.NewRunner(
		repo,
		stages,
		artifacts,
		publisher,
		app.hub,
		clk,
		cfg.PubSub.Topic,
		logger.Named("runner"),
	)
	app.dispatch = pipeline.NewDispatcher(app.queue, runner, cfg.Pipeline.Workers, logger.Named("dispatcher"))

	app.manager = pipeline.NewManager(repo, app.queue, idgen.New(), norm, clk, logger.Named("manager"))
	app.apiServer = api.NewServer(app.manager, repo, stats, *cfg, logger.Named("api"))

	return app, nil
}

// RunJob executes a single submission in the foreground and returns its
// terminal record. It serves the one-shot CLI path; the HTTP server never
// starts.
func (a *App) RunJob(ctx context.Context, startURL string, maxPages int) (store.JobRecord, error) {
	rec, err := a.manager.Submit(ctx, pipeline.Request{StartURL: startURL, MaxPages: maxPages})
	if err != nil {
		return store.JobRecord{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	// Closing the queue lets the dispatcher drain the single task and stop.
	a.queue.Close()
	a.dispatch.Run(ctx)
	return a.manager.GetStatus(ctx, rec.ID)
}

func stageConfig(cfg *config.Config) pipeline.StageConfig {
	return pipeline.StageConfig{
		Crawl: crawl.Options{
			MaxPages:    cfg.Crawl.MaxPagesDefault,
			PageTimeout: cfg.Crawl.PageTimeout(),
		},
		Capture: capture.Config{
			Concurrency: cfg.Capture.Concurrency,
			Timeout:     cfg.Capture.Timeout(),
			Settle:      cfg.Capture.Settle(),
			Viewport: capture.Viewport{
				Width:  cfg.Capture.ViewportWidth,
				Height: cfg.Capture.ViewportHeight,
			},
			UserAgent: cfg.Crawl.UserAgent,
		},
		Audit: audit.Config{
			Attempts:  cfg.Audit.Attempts,
			Backoff:   cfg.Audit.Backoff(),
			Timeout:   cfg.Audit.Timeout(),
			UserAgent: cfg.Crawl.UserAgent,
			Width:     cfg.Capture.ViewportWidth,
			Height:    cfg.Capture.ViewportHeight,
		},
	}
}

func setupStore(ctx context.Context, app *App) (store.Repository, store.StatsRecorder, error) {
	switch app.cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             app.cfg.Store.DSN,
			MaxConns:        int32(app.cfg.Store.MaxConns),
			MinConns:        int32(app.cfg.Store.MinConns),
			MaxConnLifetime: app.cfg.Store.ConnLifetime(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.pgStore = pg
		app.logger.Info("using postgres job store")
		return pg, pg, nil
	default:
		app.logger.Info("using in-memory job store")
		mem := storemem.New()
		return mem, mem, nil
	}
}

func setupArtifacts(ctx context.Context, app *App) (artifact.Store, error) {
	switch app.cfg.Artifacts.Backend {
	case config.ArtifactsGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		blob, err := artifactgcs.New(client, artifactgcs.Config{
			Bucket: app.cfg.Artifacts.Bucket,
			Prefix: app.cfg.Artifacts.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs artifact store init failed: %w", err)
		}
		app.logger.Info("using gcs artifact backend", zap.String("bucket", app.cfg.Artifacts.Bucket))
		return blob, nil
	case config.ArtifactsMemory:
		app.logger.Info("using in-memory artifact backend")
		return artifactmem.New(), nil
	default:
		blob, err := artifactlocal.New(artifactlocal.Config{BaseDir: app.cfg.Artifacts.Dir})
		if err != nil {
			return nil, fmt.Errorf("local artifact store init failed: %w", err)
		}
		app.logger.Info("using local artifact backend", zap.String("dir", app.cfg.Artifacts.Dir))
		return blob, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (notify.Publisher, error) {
	if !app.cfg.PubSub.Enabled {
		app.logger.Info("pubsub disabled, completed jobs keep their reports local")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubTopic = client.Topic(app.cfg.PubSub.Topic)
	app.logger.Info("pubsub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return notifypubsub.New(app.pubsubTopic), nil
}

func setupProgress(ctx context.Context, app *App, stats store.StatsRecorder) (*progress.Hub, error) {
	var sinkList []progress.Sink
	if stats != nil {
		sinkList = append(
			sinkList,
			progresssinks.NewStoreSink(stats, app.logger.Named("progress_store")),
		)
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if app.cfg.Logging.Development {
		sinkList = append(
			sinkList,
			progresssinks.NewLogSink(app.logger.Named("progress_log")),
		)
	}

	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      app.logger.Named("progress_hub"),
	}, sinkList...)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return hub, nil
}
