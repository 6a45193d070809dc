// Package main wires together the newswatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"newswatch/internal/ai"
	"newswatch/internal/analysis"
	"newswatch/internal/api"
	"newswatch/internal/clock/system"
	"newswatch/internal/config"
	"newswatch/internal/fanout"
	"newswatch/internal/fetcher/engine"
	"newswatch/internal/fetcher/feed"
	"newswatch/internal/fetcher/htmlclient"
	"newswatch/internal/fetcher/searchapi"
	"newswatch/internal/fetcher/toutiao"
	"newswatch/internal/headless"
	"newswatch/internal/logging"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/report"
	"newswatch/internal/resilience"
	"newswatch/internal/scheduler"
	"newswatch/internal/scoring"
	"newswatch/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.Logging.Level != "" {
		logger, err = logging.WithLevel(logger, cfg.Logging.Level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger level %q: %v\n", cfg.Logging.Level, err)
			os.Exit(1)
		}
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	clock := system.New()
	scorer := scoring.New(scoring.Options{
		Weights: scoring.Weights{
			Quality:   cfg.Scoring.QualityWeight,
			Freshness: cfg.Scoring.FreshnessWeight,
		},
		Lambda:   cfg.Scoring.DecayLambda,
		Adaptive: cfg.Scoring.Adaptive,
	})

	var classifier news.Classifier
	var ranker news.Ranker
	if cfg.LLM.Enabled {
		llmOpts := ai.Options{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}
		classifier = ai.NewClassifier(llmOpts, clock, logger)
		ranker = ai.NewRanker(llmOpts, logger)
	}

	pipeline := analysis.New(db, classifier, clock, logger, analysis.Options{
		Workers:    cfg.Analysis.Workers,
		QueueDepth: cfg.Analysis.QueueDepth,
	})
	pipeline.Start(ctx)
	defer pipeline.Stop()

	renderer, err := report.NewHTMLRenderer(cfg.Report.OutputDir)
	if err != nil {
		return fmt.Errorf("report renderer: %w", err)
	}
	reportPipeline := report.NewPipeline(report.Options{
		Articles:    db,
		Reports:     db,
		Ranker:      ranker,
		Renderer:    renderer,
		Scorer:      scorer,
		Clock:       clock,
		Logger:      logger,
		TargetCount: cfg.Report.TargetCount,
	})

	fetchers := buildFetchers(cfg, clock, logger)
	if len(fetchers) == 0 {
		logger.Warn("no providers enabled, crawl runs will be empty")
	}

	sched := scheduler.New(scheduler.Options{
		Subscriptions: db,
		Schedule:      db,
		Executor:      fanout.New(cfg.Crawler.MaxWorkers, cfg.Crawler.MaxResults, logger),
		Fetchers:      fetchers,
		Ingestor:      pipeline,
		Reports:       reportPipeline,
		Logger:        logger,
		StopWait:      cfg.StopBudget(),
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.DB.RetentionDay > 0 {
		go retentionLoop(ctx, db, cfg.DB.RetentionDay, logger)
	}

	apiServer := api.NewServer(api.Options{
		Articles: db,
		Subs:     db,
		Schedule: db,
		Reports:  db,
		Trigger:  sched,
		Scorer:   scorer,
		Clock:    clock,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// buildFetchers assembles one fetcher per enabled provider.
func buildFetchers(cfg config.Config, clock news.Clock, logger *zap.Logger) []news.Fetcher {
	var fetchers []news.Fetcher

	detector := resilience.NewBlockDetector()
	retry := resilience.NewRetryPolicy(
		cfg.Resilience.MaxRetries,
		time.Duration(cfg.Resilience.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Resilience.BackoffMaxMs)*time.Millisecond,
	)
	fetchTimeout := cfg.FetchBudget()
	resolver := resilience.NewResolver(detector, logger, cfg.Resilience.MaxRedirectHops, fetchTimeout)

	var session *headless.Session
	if cfg.Headless.MaxParallel > 0 {
		session = headless.NewSession(headless.Options{
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			ChromePath:  cfg.Headless.ChromePath,
			UserAgent:   cfg.Crawler.UserAgent,
		}, logger)
	}

	if cfg.Providers.Baidu.Enabled || cfg.Providers.Bing.Enabled || cfg.Providers.Yahoo.Enabled {
		client := htmlclient.New(htmlclient.Config{
			Timeout: fetchTimeout,
			Delay:   time.Duration(cfg.Crawler.PerDomainDelayMs) * time.Millisecond,
		})
		deps := engine.Deps{
			Client:   client,
			Session:  session,
			Retry:    retry,
			Detector: detector,
			Resolver: resolver,
			Clock:    clock,
			Logger:   logger,
		}
		if cfg.Providers.Baidu.Enabled {
			fetchers = append(fetchers, engine.NewBaidu(deps))
		}
		if cfg.Providers.Bing.Enabled {
			fetchers = append(fetchers, engine.NewBing(deps))
		}
		if cfg.Providers.Yahoo.Enabled {
			fetchers = append(fetchers, engine.NewYahoo(deps))
		}
	}

	if cfg.Providers.Google.Enabled {
		fetchers = append(fetchers, searchapi.NewGoogle(searchapi.GoogleOptions{
			APIKey:         cfg.Providers.Google.APIKey,
			SearchEngineID: cfg.Providers.Google.SearchEngineID,
			Timeout:        fetchTimeout,
			Retry:          retry,
			Clock:          clock,
			Logger:         logger,
		}))
	}
	if cfg.Providers.Tavily.Enabled {
		fetchers = append(fetchers, searchapi.NewTavily(searchapi.TavilyOptions{
			APIKey:  cfg.Providers.Tavily.APIKey,
			Timeout: fetchTimeout,
			Retry:   retry,
			Clock:   clock,
			Logger:  logger,
		}))
	}

	if cfg.Providers.Toutiao.Enabled && session != nil {
		fetchers = append(fetchers, toutiao.New(session, detector, clock, logger))
	} else if cfg.Providers.Toutiao.Enabled {
		logger.Warn("toutiao provider needs headless rendering, skipping")
	}

	if cfg.Providers.Kr36.Enabled {
		fetchers = append(fetchers, feed.New(feed.Options{
			Source:   news.SourceKr36,
			FeedURL:  cfg.Providers.Kr36.FeedURL,
			MaxRunes: cfg.Crawler.ContentMaxRunes,
			Clock:    clock,
			Logger:   logger,
		}))
	}
	if cfg.Providers.Huxiu.Enabled {
		fetchers = append(fetchers, feed.New(feed.Options{
			Source:   news.SourceHuxiu,
			FeedURL:  cfg.Providers.Huxiu.FeedURL,
			MaxRunes: cfg.Crawler.ContentMaxRunes,
			Clock:    clock,
			Logger:   logger,
		}))
	}

	return fetchers
}

// retentionLoop prunes articles past the retention window once a day.
func retentionLoop(ctx context.Context, db *store.Store, retentionDays int, logger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	prune := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		removed, err := db.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			logger.Warn("retention prune failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("retention prune removed articles", zap.Int64("count", removed))
		}
	}

	prune()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
