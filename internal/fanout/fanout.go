// Package fanout executes (keyword x provider) fetch pairs on a bounded
// worker pool.
package fanout

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
)

// Coordinator dispatches fetch pairs and collects attributed result groups.
type Coordinator struct {
	cap        int
	maxResults int
	logger     *zap.Logger
}

// New creates a Coordinator. cap bounds concurrent outbound fetches and
// browser instances across the whole run.
func New(cap, maxResults int, logger *zap.Logger) *Coordinator {
	if cap <= 0 {
		cap = 1
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Coordinator{
		cap:        cap,
		maxResults: maxResults,
		logger:     logger.Named("fanout"),
	}
}

type pair struct {
	keyword string
	fetcher news.Fetcher
}

// Execute runs every (keyword x fetcher) pair and returns one attributed
// group per pair, in dispatch order. A failing pair contributes an empty
// group and never aborts its siblings.
func (c *Coordinator) Execute(ctx context.Context, keywords []string, fetchers []news.Fetcher) []news.ResultGroup {
	pairs := make([]pair, 0, len(keywords)*len(fetchers))
	for _, kw := range keywords {
		for _, f := range fetchers {
			pairs = append(pairs, pair{keyword: kw, fetcher: f})
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	workers := len(pairs)
	if workers > c.cap {
		workers = c.cap
	}

	jobs := make(chan int)
	groups := make([]news.ResultGroup, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				groups[idx] = c.runPair(ctx, pairs[idx])
			}
		}()
	}

	for idx := range pairs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return groups
}

// runPair executes one fetch with a panic guard. Fetchers are fail-soft by
// contract, but a buggy one still only costs its own group.
func (c *Coordinator) runPair(ctx context.Context, p pair) (group news.ResultGroup) {
	group = news.ResultGroup{Keyword: p.keyword, Source: p.fetcher.Source()}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fetcher panicked",
				zap.String("keyword", p.keyword),
				zap.String("source", string(p.fetcher.Source())),
				zap.Any("panic", r),
			)
			group.Articles = nil
		}
	}()

	group.Articles = p.fetcher.Fetch(ctx, p.keyword, c.maxResults)
	c.logger.Debug("fetch pair finished",
		zap.String("keyword", p.keyword),
		zap.String("source", string(p.fetcher.Source())),
		zap.Int("articles", len(group.Articles)),
	)
	return group
}
