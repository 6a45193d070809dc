// Package scheduler triggers crawl runs, on a daily cron or on demand, and
// guarantees at most one run is in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"newswatch/internal/config"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/report"
)

// Ingestor accepts one crawled article for dedup and analysis.
type Ingestor interface {
	Ingest(ctx context.Context, article news.Article) (news.InsertResult, error)
}

// Executor fans the (keyword x fetcher) matrix out and returns attributed
// result groups.
type Executor interface {
	Execute(ctx context.Context, keywords []string, fetchers []news.Fetcher) []news.ResultGroup
}

// ReportGenerator builds the daily artifact for one keyword.
type ReportGenerator interface {
	Generate(ctx context.Context, keyword string) (news.Report, error)
}

// Scheduler owns the cron entry and the single-flight gate shared by
// scheduled and manual triggers.
type Scheduler struct {
	subs      news.SubscriptionStore
	schedule  news.ScheduleStore
	executor  Executor
	fetchers  []news.Fetcher
	ingestor  Ingestor
	reports   ReportGenerator
	logger    *zap.Logger
	stopWait  time.Duration
	fetchWait time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entryID cron.EntryID
	baseCtx context.Context

	inFlight atomic.Bool
	runs     atomic.Int64
	wg       sync.WaitGroup
}

// Options configures a Scheduler. Reports may be nil to disable report
// generation on scheduled runs.
type Options struct {
	Subscriptions news.SubscriptionStore
	Schedule      news.ScheduleStore
	Executor      Executor
	Fetchers      []news.Fetcher
	Ingestor      Ingestor
	Reports       ReportGenerator
	Logger        *zap.Logger
	StopWait      time.Duration
	FetchWait     time.Duration
}

func New(opts Options) *Scheduler {
	if opts.StopWait <= 0 {
		opts.StopWait = 2 * time.Second
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = 10 * time.Minute
	}
	return &Scheduler{
		subs:      opts.Subscriptions,
		schedule:  opts.Schedule,
		executor:  opts.Executor,
		fetchers:  opts.Fetchers,
		ingestor:  opts.Ingestor,
		reports:   opts.Reports,
		logger:    opts.Logger.Named("scheduler"),
		stopWait:  opts.StopWait,
		fetchWait: opts.FetchWait,
		cron:      cron.New(),
	}
}

// Start arms the cron from the stored schedule and begins ticking. ctx is
// the lifetime context inherited by scheduled runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	if err := s.Rearm(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Rearm re-reads the stored schedule and replaces the cron entry. A disabled
// schedule leaves the cron empty; manual triggers still work.
func (s *Scheduler) Rearm(ctx context.Context) error {
	cfg, err := s.schedule.GetSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	if !cfg.Enabled {
		s.logger.Info("schedule disabled, cron idle")
		return nil
	}

	hm, err := config.ParseClockTime(cfg.Time)
	if err != nil {
		return fmt.Errorf("stored schedule time %q: %w", cfg.Time, err)
	}
	spec := fmt.Sprintf("%d %d * * *", hm[1], hm[0])
	id, err := s.cron.AddFunc(spec, s.scheduledRun)
	if err != nil {
		return fmt.Errorf("arm cron %q: %w", spec, err)
	}
	s.entryID = id
	s.logger.Info("schedule armed", zap.String("time", cfg.Time))
	return nil
}

func (s *Scheduler) scheduledRun() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.RunOnce(ctx, "schedule"); err != nil {
		if errors.Is(err, news.ErrSchedulerBusy) {
			s.logger.Warn("scheduled run skipped, previous run still in flight")
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

// RunOnce performs a full run: crawl every enabled keyword, ingest, then
// generate reports. Returns ErrSchedulerBusy when a run is already active.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) error {
	return s.run(ctx, trigger, true)
}

// CollectOnly crawls and ingests without generating reports.
func (s *Scheduler) CollectOnly(ctx context.Context, trigger string) error {
	return s.run(ctx, trigger, false)
}

// RunAsync acquires the single-flight gate and performs a full run in the
// background on the scheduler's lifetime context. Returns ErrSchedulerBusy
// without starting anything when a run is already active.
func (s *Scheduler) RunAsync(trigger string) error {
	return s.runAsync(trigger, true)
}

// CollectAsync is RunAsync without report generation.
func (s *Scheduler) CollectAsync(trigger string) error {
	return s.runAsync(trigger, false)
}

// Runs reports how many runs have completed since startup.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

func (s *Scheduler) run(ctx context.Context, trigger string, withReports bool) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return news.ErrSchedulerBusy
	}
	s.wg.Add(1)
	defer func() {
		s.inFlight.Store(false)
		s.wg.Done()
	}()
	return s.execute(ctx, trigger, withReports)
}

func (s *Scheduler) runAsync(trigger string, withReports bool) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return news.ErrSchedulerBusy
	}
	s.wg.Add(1)

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer func() {
			s.inFlight.Store(false)
			s.wg.Done()
		}()
		if err := s.execute(ctx, trigger, withReports); err != nil {
			s.logger.Error("background run failed",
				zap.String("trigger", trigger), zap.Error(err))
		}
	}()
	return nil
}

func (s *Scheduler) execute(ctx context.Context, trigger string, withReports bool) error {
	runCtx, cancel := context.WithTimeout(ctx, s.fetchWait)
	defer cancel()

	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID), zap.String("trigger", trigger))
	start := time.Now()

	subs, err := s.subs.ListEnabled(runCtx)
	if err != nil {
		metrics.ObserveCrawlRun(trigger, "error", time.Since(start))
		return fmt.Errorf("list enabled subscriptions: %w", err)
	}
	if len(subs) == 0 {
		logger.Info("no enabled subscriptions, nothing to crawl")
		s.runs.Add(1)
		metrics.ObserveCrawlRun(trigger, "empty", time.Since(start))
		return nil
	}
	keywords := make([]string, len(subs))
	for i, sub := range subs {
		keywords[i] = sub.Keyword
	}
	logger.Info("crawl run started",
		zap.Strings("keywords", keywords),
		zap.Int("fetchers", len(s.fetchers)),
	)

	groups := s.executor.Execute(runCtx, keywords, s.fetchers)

	var fetched, inserted int
	for _, group := range groups {
		fetched += len(group.Articles)
		for _, article := range group.Articles {
			res, err := s.ingestor.Ingest(runCtx, article)
			if err != nil {
				logger.Warn("ingest failed",
					zap.String("url", article.URL), zap.Error(err))
				continue
			}
			if res.Inserted {
				inserted++
			}
		}
	}

	if withReports && s.reports != nil {
		for _, kw := range keywords {
			if _, err := s.reports.Generate(runCtx, kw); err != nil {
				if errors.Is(err, report.ErrNoArticles) {
					continue
				}
				logger.Warn("report generation failed",
					zap.String("keyword", kw), zap.Error(err))
			}
		}
	}

	s.runs.Add(1)
	metrics.ObserveCrawlRun(trigger, "ok", time.Since(start))
	logger.Info("crawl run finished",
		zap.Int("fetched", fetched),
		zap.Int("inserted", inserted),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Stop halts the cron and waits for any in-flight run, bounded by the stop
// budget. A timeout is reported, never fatal.
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(s.stopWait):
		s.logger.Warn("scheduler stop timed out with a run still in flight",
			zap.Duration("waited", s.stopWait))
	}
}
