// Package app initializes and holds the long-lived pipeline services,
// acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trendline/hotarchive/internal/archive"
	"github.com/trendline/hotarchive/internal/clock/system"
	"github.com/trendline/hotarchive/internal/config"
	"github.com/trendline/hotarchive/internal/crawl"
	"github.com/trendline/hotarchive/internal/heat"
	"github.com/trendline/hotarchive/internal/logging"
	"github.com/trendline/hotarchive/internal/metrics"
	"github.com/trendline/hotarchive/internal/posts"
	"github.com/trendline/hotarchive/internal/scheduler"
	"github.com/trendline/hotarchive/internal/source/local"
	"github.com/trendline/hotarchive/internal/source/remote"
)

// App holds all the shared, long-lived services for the pipeline. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *archive.Store
	remote     *remote.Source
	live       *local.Source
	pipeline   *posts.Pipeline
	aggregator *heat.Aggregator
	sched      *scheduler.Scheduler
	metricsSrv *http.Server
}

// New builds every service from the configuration, failing fast when a
// critical one cannot be initialized.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	store, err := archive.NewStore(cfg.DataDir, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	clk := system.Clock{}

	remoteSrc := remote.New(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.RemoteTimeout(),
	}, logger.Named("remote"))

	liveSrc := local.New(local.Config{
		APIURL:        cfg.Local.APIURL,
		SummaryURL:    cfg.Local.SummaryURL,
		DetailURL:     cfg.Local.DetailURL,
		UserAgent:     cfg.Local.UserAgent,
		Timeout:       time.Duration(cfg.Local.TimeoutSeconds) * time.Second,
		EnrichDetails: cfg.Local.EnrichDetails,
	}, logger.Named("live"))

	fetcher := crawl.NewWeiboFetcher(crawl.FetcherConfig{
		BaseURL:        cfg.Crawl.BaseURL,
		UserAgent:      cfg.Crawl.UserAgent,
		Timeout:        time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
		RequestsPerSec: cfg.Crawl.RequestsPerSec,
	})
	policy := crawl.NewExponentialRetryPolicy(
		cfg.Crawl.MaxRetries,
		time.Duration(cfg.Crawl.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Crawl.BackoffMaxMs)*time.Millisecond,
	)
	engine := crawl.NewEngine(fetcher, policy, clk, crawl.EngineConfig{
		LikeWeight:    cfg.Crawl.LikeWeight,
		CommentWeight: cfg.Crawl.CommentWeight,
		RepostWeight:  cfg.Crawl.RepostWeight,
		PageDelayMin:  time.Duration(cfg.Crawl.PageDelayMinMs) * time.Millisecond,
		PageDelayMax:  time.Duration(cfg.Crawl.PageDelayMaxMs) * time.Millisecond,
	}, logger.Named("crawl"))

	detail := posts.NewDetailFallback(posts.DetailConfig{
		SearchURL: cfg.Crawl.DetailSearchURL,
		UserAgent: cfg.Local.UserAgent,
		Timeout:   time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
	}, clk, logger.Named("detail"))

	pipeline := posts.NewPipeline(engine, detail, store, clk, posts.Config{
		TopN:     cfg.Crawl.TopN,
		MaxPages: cfg.Crawl.MaxPages,
		MinScore: cfg.Crawl.MinScore,
	}, logger.Named("posts"))

	aggregator := heat.NewAggregator(store, remoteSrc, clk, cfg.Heat.MaxDays, logger.Named("heat"))

	sched := scheduler.New(remoteSrc, liveSrc, store, pipeline, aggregator, clk, scheduler.Config{
		LookbackDays:        cfg.Scheduler.LookbackDays,
		PollInterval:        cfg.PollInterval(),
		CatchupInterval:     cfg.CatchupInterval(),
		EscalationThreshold: cfg.EscalationThreshold(),
		LiveLimit:           cfg.Local.Limit,
		MaxTopicsPerRun:     cfg.Scheduler.MaxTopicsPerRun,
		HourlyPostLimit:     cfg.Scheduler.HourlyPostLimit,
		HourlyCacheTTL:      cfg.HourlyCacheTTL(),
	}, logger.Named("scheduler"))

	a := &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		remote:     remoteSrc,
		live:       liveSrc,
		pipeline:   pipeline,
		aggregator: aggregator,
		sched:      sched,
	}
	if cfg.Metrics.Enabled {
		a.startMetricsServer()
	}
	logger.Info("services initialized", zap.String("data_dir", cfg.DataDir))
	return a, nil
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the archive store.
func (a *App) Store() *archive.Store { return a.store }

// Scheduler exposes the backfill loop.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Posts exposes the post refresh pipeline.
func (a *App) Posts() *posts.Pipeline { return a.pipeline }

// Heat exposes the daily heat aggregator.
func (a *App) Heat() *heat.Aggregator { return a.aggregator }

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close shuts down background services and flushes the logger.
func (a *App) Close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	// Best effort: stderr sync fails on some platforms and that is fine.
	_ = a.logger.Sync()
}
