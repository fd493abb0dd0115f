package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sentinel/anomaly"
	"sentinel/config"
	"sentinel/core"
	"sentinel/detect"
	"sentinel/notify"
	"sentinel/storage"
	"sentinel/threat"
)

// App represents the Sentinel application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	SQLite     *storage.SQLite
	Rules      storage.RuleStore
	Metrics    *storage.SQLiteMetricStore
	Indicators storage.IndicatorStore

	// Services
	Notifier  *notify.Notifier
	Pool      *core.WorkerPool
	Engine    *detect.Engine
	Scheduler *detect.Scheduler
	Cache     threat.IndicatorCache
	Intel     *threat.IntelService
	Matcher   *threat.CorrelationMatcher
	Anomalies *anomaly.Detector

	// Lifecycle
	metricsServer *http.Server
	cancel        context.CancelFunc
	loopWg        sync.WaitGroup
	started       bool
}

// NewApp creates a new application instance and initializes all components.
// An empty configPath loads config from the default search paths.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfigFile(configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, sugar, err := InitLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  sugar,
	}

	sugar.Info("Sentinel starting...")

	sqlite, err := storage.NewSQLite(cfg.Database.Path, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	app.SQLite = sqlite
	app.Rules = storage.NewSQLiteRuleStore(sqlite, sugar)
	app.Metrics = storage.NewSQLiteMetricStore(sqlite, sugar)
	app.Indicators = storage.NewSQLiteIndicatorStore(sqlite, sugar)

	if cfg.Redis.Enabled {
		cache := threat.NewRedisIndicatorCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Cache.TTL, sugar)
		if err := cache.Ping(ctx); err != nil {
			sqlite.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.Cache = cache
		sugar.Infow("Indicator cache initialized", "backend", "redis", "addr", cfg.Redis.Addr)
	} else {
		cache, err := threat.NewLRUIndicatorCache(cfg.Cache.Size, cfg.Cache.TTL)
		if err != nil {
			sqlite.Close()
			return nil, fmt.Errorf("failed to initialize indicator cache: %w", err)
		}
		app.Cache = cache
		sugar.Infow("Indicator cache initialized", "backend", "lru", "size", cfg.Cache.Size)
	}

	sinks := []notify.Sink{notify.NewLogSink(sugar)}
	if cfg.Notifications.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notifications.Webhook.URL, nil, cfg.Notifications.Webhook.Timeout, sugar))
		sugar.Infow("Webhook sink enabled", "url", cfg.Notifications.Webhook.URL)
	}
	app.Notifier = notify.NewNotifier(core.Severity(cfg.Notifications.MinSeverity), sugar, sinks...)

	app.Pool = core.NewWorkerPool(ctx, cfg.Evaluation.WorkerCount, cfg.Evaluation.QueueSize, "evaluation", sugar)
	app.Engine = detect.NewEngine(app.Rules, app.Metrics, app.Notifier, app.Pool, cfg.Evaluation.RuleTimeout, sugar)
	app.Scheduler = detect.NewScheduler(app.Engine, cfg.Evaluation.Interval, sugar)

	app.Intel = threat.NewIntelService(app.Indicators, app.Cache, app.Notifier, sugar)
	app.Matcher = threat.NewCorrelationMatcher(app.Indicators, app.Cache, app.Notifier, sugar)
	app.Anomalies = anomaly.NewDetector(app.Metrics, app.Notifier, sugar)

	return app, nil
}

// Start launches the evaluation scheduler and background maintenance loops.
func (a *App) Start(parentCtx context.Context) error {
	if a.started {
		return nil
	}

	ctx, cancel := context.WithCancel(parentCtx)
	a.cancel = cancel

	if err := a.Pool.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	a.Scheduler.Start(ctx)
	a.Sugar.Infow("Evaluation scheduler started", "interval", a.Config.Evaluation.Interval)

	if a.Config.Anomaly.Enabled && len(a.Config.Anomaly.Metrics) > 0 {
		a.loopWg.Add(1)
		go a.runAnomalyLoop(ctx)
		a.Sugar.Infow("Anomaly detection started",
			"interval", a.Config.Anomaly.Interval,
			"window", a.Config.Anomaly.Window,
			"metrics", a.Config.Anomaly.Metrics)
	}

	a.loopWg.Add(1)
	go a.runCleanupLoop(ctx)

	if a.Config.Metrics.Enabled {
		if err := a.startMetricsServer(); err != nil {
			cancel()
			return err
		}
	}

	a.started = true
	return nil
}

// EvaluateOnce starts the worker pool and runs a single evaluation cycle
// without the scheduler or maintenance loops. The caller still shuts the
// app down afterwards.
func (a *App) EvaluateOnce(ctx context.Context) (*detect.EvaluationResult, error) {
	if err := a.Pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	return a.Engine.EvaluateAll(ctx)
}

func (a *App) startMetricsServer() error {
	addr := net.JoinHostPort(a.Config.Metrics.Host, fmt.Sprintf("%d", a.Config.Metrics.Port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener on %s: %w", addr, err)
	}

	go func() {
		if err := a.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("Metrics server failed", "error", err)
		}
	}()

	a.Sugar.Infow("Metrics server started", "addr", addr)
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Sugar.Warnw("Metrics server shutdown failed", "error", err)
		}
		cancel()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.loopWg.Wait()

	if a.Pool != nil {
		a.Pool.Stop()
	}

	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Sugar.Warnw("Failed to close indicator cache", "error", err)
		}
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close SQLite", "error", err)
		}
	}

	a.started = false
	a.Sugar.Info("Shutdown complete")
}

func (a *App) runAnomalyLoop(ctx context.Context) {
	defer a.loopWg.Done()

	ticker := time.NewTicker(a.Config.Anomaly.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range a.Config.Anomaly.Metrics {
				if _, err := a.Anomalies.Detect(ctx, name, a.Config.Anomaly.Window); err != nil {
					a.Sugar.Warnw("Anomaly detection failed", "metric", name, "error", err)
				}
			}
		}
	}
}

func (a *App) runCleanupLoop(ctx context.Context) {
	defer a.loopWg.Done()

	ticker := time.NewTicker(a.Config.Retention.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runCleanup(ctx)
		}
	}
}

func (a *App) runCleanup(ctx context.Context) {
	indicatorRetention := time.Duration(a.Config.Retention.Indicators) * 24 * time.Hour
	deactivated, err := a.Intel.CleanupExpired(ctx, indicatorRetention)
	if err != nil {
		a.Sugar.Warnw("Indicator cleanup failed", "error", err)
	} else if deactivated > 0 {
		a.Sugar.Infow("Expired indicators deactivated", "count", deactivated)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.Config.Retention.Metrics) * 24 * time.Hour)
	deleted, err := a.Metrics.DeleteBefore(ctx, cutoff)
	if err != nil {
		a.Sugar.Warnw("Metric retention sweep failed", "error", err)
	} else if deleted > 0 {
		a.Sugar.Infow("Old metric samples deleted", "count", deleted, "cutoff", cutoff)
	}
}
