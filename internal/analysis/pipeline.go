// Package analysis runs the classifier asynchronously over newly inserted
// articles. Insertion never waits on a model call.
package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
)

// Pipeline dedups articles into the store and schedules classification for
// every winning insert.
type Pipeline struct {
	store      news.ArticleStore
	classifier news.Classifier
	clock      news.Clock
	logger     *zap.Logger

	queue   chan news.Article
	done    chan struct{}
	workers int
	timeout time.Duration
	sweep   time.Duration

	wg sync.WaitGroup

	// mu orders queue sends against close so a straggling Ingest after
	// Stop leaves the article pending instead of panicking.
	mu     sync.RWMutex
	closed bool
}

// Options sizes the pipeline.
type Options struct {
	Workers    int
	QueueDepth int
	// Timeout bounds a single classifier call.
	Timeout time.Duration
	// SweepInterval paces the pending-row requeue pass.
	SweepInterval time.Duration
}

// New builds a Pipeline. The classifier may be nil; articles are then
// finalized immediately with the neutral default score.
func New(store news.ArticleStore, classifier news.Classifier, clock news.Clock, logger *zap.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return &Pipeline{
		store:      store,
		classifier: classifier,
		clock:      clock,
		logger:     logger.Named("analysis"),
		queue:      make(chan news.Article, opts.QueueDepth),
		done:       make(chan struct{}),
		workers:    opts.Workers,
		timeout:    opts.Timeout,
		sweep:      opts.SweepInterval,
	}
}

// Start launches the classification workers and the pending-row sweeper.
// ctx cancellation drains and stops them.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case article, ok := <-p.queue:
					if !ok {
						return
					}
					p.analyze(ctx, article)
				}
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				p.sweepPending(ctx)
			}
		}
	}()
}

// Stop closes the queue and waits for in-flight classifications. Ingest
// calls arriving afterwards leave their articles pending for the sweeper of
// the next process.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
		close(p.done)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Ingest inserts the article and, on a winning insert, queues it for
// classification. A full queue drops the hand-off with a warning rather
// than blocking the crawl; the sweeper picks the row up later.
func (p *Pipeline) Ingest(ctx context.Context, article news.Article) (news.InsertResult, error) {
	res, err := p.store.InsertIfAbsent(ctx, article)
	if err != nil {
		return news.InsertResult{}, err
	}
	metrics.ObserveInsert(res.Inserted)
	if !res.Inserted {
		return res, nil
	}

	if !p.enqueue(article) {
		p.logger.Warn("analysis queue unavailable, leaving article pending",
			zap.String("url", article.URL))
	}
	return res, nil
}

// enqueue hands the article to a worker without blocking. It reports false
// when the queue is full or already closed.
func (p *Pipeline) enqueue(article news.Article) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- article:
		return true
	default:
		return false
	}
}

// sweepPending requeues stored articles whose classification never ran,
// either because the queue was full at ingest time or a previous process
// stopped before draining.
func (p *Pipeline) sweepPending(ctx context.Context) {
	pending, err := p.store.ListPendingAnalysis(ctx, cap(p.queue))
	if err != nil {
		p.logger.Warn("pending sweep failed", zap.Error(err))
		return
	}
	requeued := 0
	for _, article := range pending {
		if !p.enqueue(article) {
			break
		}
		requeued++
	}
	if requeued > 0 {
		p.logger.Info("requeued pending articles", zap.Int("count", requeued))
	}
}

// analyze runs the classifier for one article and persists its verdict.
// Any failure ends in a terminal failed record with the neutral score, so
// no article stays unanalyzed indefinitely.
func (p *Pipeline) analyze(ctx context.Context, article news.Article) {
	result, err := p.classify(ctx, article)
	if err != nil {
		p.logger.Warn("classification failed, persisting neutral verdict",
			zap.String("url", article.URL), zap.Error(err))
		result = news.AnalysisResult{
			Status:          news.AnalysisFailed,
			ImportanceScore: news.DefaultImportance,
			AnalyzedAt:      p.clock.Now(),
		}
	}
	result.URL = article.URL
	metrics.ObserveAnalysis(string(result.Status))

	if err := p.store.SaveAnalysis(ctx, result); err != nil {
		p.logger.Error("failed to persist analysis",
			zap.String("url", article.URL), zap.Error(err))
	}
}

func (p *Pipeline) classify(ctx context.Context, article news.Article) (news.AnalysisResult, error) {
	if p.classifier == nil {
		return news.AnalysisResult{
			Status:          news.AnalysisSuccess,
			ImportanceScore: news.DefaultImportance,
			AnalyzedAt:      p.clock.Now(),
		}, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.classifier.Analyze(callCtx, article.Title, article.Content, article.CrawledAt)
}
