package resilience

import (
	"context"

	"go.uber.org/zap"

	"newswatch/internal/news"
)

// Attempt is one step in a fallback chain, typically a lightweight HTTP
// fetch followed by a headless render.
type Attempt struct {
	Name string
	Run  func(ctx context.Context) news.Outcome
}

// FallbackChain runs attempts in order until one yields results.
// Every non-OK outcome is a decision, not an exception: blocked and empty
// attempts advance the chain exactly like errors do.
type FallbackChain struct {
	logger *zap.Logger
}

// NewFallbackChain creates a chain runner.
func NewFallbackChain(logger *zap.Logger) *FallbackChain {
	return &FallbackChain{logger: logger}
}

// Execute runs the attempts and returns the first OK outcome. When no
// attempt produces articles the final attempt's outcome is returned, so the
// caller can still distinguish empty from blocked from failed.
func (c *FallbackChain) Execute(ctx context.Context, attempts ...Attempt) news.Outcome {
	last := news.Outcome{Kind: news.OutcomeEmpty}
	for i, attempt := range attempts {
		if ctx.Err() != nil {
			return news.Failed(ctx.Err())
		}
		outcome := attempt.Run(ctx)
		switch outcome.Kind {
		case news.OutcomeOK:
			if i > 0 {
				c.logger.Info("fallback attempt recovered results",
					zap.String("attempt", attempt.Name),
					zap.Int("articles", len(outcome.Articles)),
				)
			}
			return outcome
		case news.OutcomeBlocked:
			c.logger.Warn("attempt hit a verification page, moving on",
				zap.String("attempt", attempt.Name),
			)
		case news.OutcomeError:
			c.logger.Warn("attempt failed, moving on",
				zap.String("attempt", attempt.Name),
				zap.Error(outcome.Err),
			)
		case news.OutcomeEmpty:
			c.logger.Debug("attempt returned no results",
				zap.String("attempt", attempt.Name),
			)
		}
		last = outcome
	}
	return last
}
