// Package app builds the long-lived services and runs plans and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/workprogress/internal/api"
	"github.com/JakeFAU/workprogress/internal/clock/system"
	"github.com/JakeFAU/workprogress/internal/config"
	uuidgen "github.com/JakeFAU/workprogress/internal/id/uuid"
	"github.com/JakeFAU/workprogress/internal/logging"
	"github.com/JakeFAU/workprogress/internal/metrics"
	"github.com/JakeFAU/workprogress/internal/progress"
	progresssinks "github.com/JakeFAU/workprogress/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/workprogress/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/workprogress/internal/publisher/pubsub"
	"github.com/JakeFAU/workprogress/internal/runner"
	memorystorage "github.com/JakeFAU/workprogress/internal/storage/memory"
	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	registry        *prometheus.Registry
	runs            *memorystorage.RunStore
	hub             *progress.Hub
	apiServer       *api.Server
	idGen           *uuidgen.Generator
	clock           progress.Clock
	memPublisher    *memorypublisher.Publisher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies, including the logger.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies around logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		runs:     memorystorage.NewRunStore(),
		idGen:    uuidgen.New(),
		clock:    system.New(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger.Info("building application dependencies", zap.Int("server_port", cfg.Server.Port))

	sinks, err := app.setupSinks(ctx)
	if err != nil {
		return nil, err
	}
	app.setupHub(ctx, sinks)

	app.apiServer = api.NewServer(api.Options{
		Runs:     app.runs,
		Metrics:  metrics.NewHTTP(app.registry, app.registry),
		HubStats: app.hub.Stats,
		Logger:   logger.Named("api"),
	})
	return app, nil
}

func (a *App) setupSinks(ctx context.Context) ([]progress.Sink, error) {
	var sinkList []progress.Sink
	sinksCfg := a.cfg.Progress.Sinks
	if sinksCfg.Store {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")))
		a.logger.Debug("added progress store sink")
	}
	if sinksCfg.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(
			a.logger.Named("progress_log"),
			a.cfg.Progress.LogRatePerMonitor,
			a.cfg.Progress.LogBurst,
		))
		a.logger.Debug("added progress log sink")
	}
	if sinksCfg.Prometheus {
		promSink, err := progresssinks.NewPrometheusSink(a.registry)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		a.logger.Debug("added progress prometheus sink")
	}
	if sinksCfg.Publish {
		publisher, err := a.setupPublisher(ctx)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, progresssinks.NewPublishSink(
			publisher,
			a.cfg.PubSub.TopicName,
			a.cfg.PubSub.TerminalOnly,
			a.logger.Named("progress_publish"),
		))
		a.logger.Debug("added progress publish sink")
	}
	if len(sinkList) == 0 {
		a.logger.Warn("no progress sinks configured; monitor events will only be counted")
	}
	return sinkList, nil
}

func (a *App) setupPublisher(ctx context.Context) (progresssinks.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		a.memPublisher = memorypublisher.New()
		return a.memPublisher, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsubPublisher, nil
}

func (a *App) setupHub(ctx context.Context, sinks []progress.Sink) {
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait(),
		SinkTimeout:    a.cfg.Progress.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinks...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinks)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunPlan executes plan on the calling goroutine and returns its run id. The
// root monitor's events reach the sinks asynchronously through the hub.
func (a *App) RunPlan(ctx context.Context, plan runner.Plan) (uuid.UUID, error) {
	runID, err := a.idGen.NewRunID()
	if err != nil {
		return uuid.Nil, err
	}
	recorder := progress.NewRecorder(runID, a.hub, a.clock)
	r := runner.New(recorder, runner.Config{
		MonitorOptions: []monitor.Option{
			monitor.WithLogger(a.logger.Named("monitor")),
			monitor.WithCancelPropagation(a.cfg.Monitor.PropagateCancel),
		},
		TrackDepth: a.cfg.Monitor.TrackDepth,
	}, a.logger.Named("runner").With(zap.Stringer("run_id", runID)))

	root, err := r.Run(ctx, plan)
	if err != nil {
		return runID, err
	}
	a.logger.Info("run finished",
		zap.Stringer("run_id", runID),
		zap.String("plan", plan.Name),
		zap.Stringer("state", root.State()),
		zap.Float64("fraction", root.Fraction()),
	)
	return runID, nil
}

// Serve starts the HTTP server, runs the configured plan (if any) once, and
// blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	if a.cfg.Plan.Name != "" {
		go func() {
			if _, err := a.RunPlan(ctx, a.cfg.Plan); err != nil {
				a.logger.Warn("plan did not complete", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close flushes pending events and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	a.logger.Info("shutdown complete", zap.Any("events", a.hub.Stats()))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
