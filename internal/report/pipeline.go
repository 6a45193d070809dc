package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"newswatch/internal/news"
	"newswatch/internal/scoring"
)

// ErrNoArticles means the lookback window held nothing for the keyword, so
// there is no artifact to write.
var ErrNoArticles = errors.New("report: no articles in window")

const (
	defaultTargetCount = 7
	defaultLookback    = 24 * time.Hour
	candidateLimit     = 100
)

// Pipeline assembles one report per keyword: recent articles scored and
// ordered, cut down by the ranker, rendered, and recorded.
type Pipeline struct {
	articles    news.ArticleStore
	reports     news.ReportStore
	ranker      news.Ranker
	renderer    news.Renderer
	scorer      *scoring.Scorer
	clock       news.Clock
	logger      *zap.Logger
	targetCount int
	lookback    time.Duration
}

// Options configures a report Pipeline. Ranker may be nil; the pipeline then
// keeps the score ordering and truncates.
type Options struct {
	Articles    news.ArticleStore
	Reports     news.ReportStore
	Ranker      news.Ranker
	Renderer    news.Renderer
	Scorer      *scoring.Scorer
	Clock       news.Clock
	Logger      *zap.Logger
	TargetCount int
	Lookback    time.Duration
}

func NewPipeline(opts Options) *Pipeline {
	if opts.TargetCount <= 0 {
		opts.TargetCount = defaultTargetCount
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	return &Pipeline{
		articles:    opts.Articles,
		reports:     opts.Reports,
		ranker:      opts.Ranker,
		renderer:    opts.Renderer,
		scorer:      opts.Scorer,
		clock:       opts.Clock,
		logger:      opts.Logger.Named("report"),
		targetCount: opts.TargetCount,
		lookback:    opts.Lookback,
	}
}

// Generate builds and records the report for one keyword. The report date is
// the current day; regenerating the same keyword and day overwrites the
// previous record.
func (p *Pipeline) Generate(ctx context.Context, keyword string) (news.Report, error) {
	now := p.clock.Now()
	date := now.Format("2006-01-02")

	candidates, err := p.articles.ListRecentByKeyword(ctx, keyword, now.Add(-p.lookback), candidateLimit)
	if err != nil {
		return news.Report{}, fmt.Errorf("list recent articles: %w", err)
	}
	if len(candidates) == 0 {
		return news.Report{}, ErrNoArticles
	}

	scores := p.sortByScore(candidates, now)
	ranked := p.rank(ctx, candidates, scores, keyword)

	summary := fmt.Sprintf("%s 共收录 %d 篇，精选 %d 篇。", date, len(candidates), len(ranked))
	path, err := p.renderer.Render(keyword, date, ranked, summary)
	if err != nil {
		return news.Report{}, fmt.Errorf("render report: %w", err)
	}

	rpt := news.Report{
		Keyword:      keyword,
		Date:         date,
		FilePath:     path,
		ArticleCount: len(ranked),
		GeneratedAt:  now,
	}
	id, err := p.reports.CreateReport(ctx, rpt)
	if err != nil {
		return news.Report{}, fmt.Errorf("record report: %w", err)
	}
	rpt.ID = id

	p.logger.Info("report generated",
		zap.String("keyword", keyword),
		zap.String("date", date),
		zap.String("path", path),
		zap.Int("articles", len(ranked)),
	)
	return rpt, nil
}

// sortByScore orders candidates best-first in place and returns each
// article's final score, re-indexed to the sorted order.
func (p *Pipeline) sortByScore(articles []news.Article, now time.Time) []float64 {
	type scored struct {
		article news.Article
		final   float64
	}
	rows := make([]scored, len(articles))
	for i, a := range articles {
		rows[i] = scored{article: a, final: p.scorer.Score(a, now).Final}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].final > rows[j].final })

	scores := make([]float64, len(rows))
	for i, row := range rows {
		articles[i] = row.article
		scores[i] = row.final
	}
	return scores
}

// rank asks the ranker for the final cut and falls back to score-ordered
// truncation when it is absent or fails.
func (p *Pipeline) rank(ctx context.Context, candidates []news.Article, scores []float64, keyword string) []news.RankedArticle {
	if p.ranker != nil {
		ranked, err := p.ranker.Rank(ctx, candidates, keyword, p.targetCount)
		if err == nil && len(ranked) > 0 {
			return ranked
		}
		if err != nil {
			p.logger.Warn("ranker failed, falling back to score order",
				zap.String("keyword", keyword), zap.Error(err))
		}
	}

	n := len(candidates)
	if n > p.targetCount {
		n = p.targetCount
	}
	ranked := make([]news.RankedArticle, 0, n)
	for i := 0; i < n; i++ {
		ranked = append(ranked, news.RankedArticle{
			Article:  candidates[i],
			Priority: priorityForScore(scores[i]),
		})
	}
	return ranked
}

func priorityForScore(final float64) string {
	switch {
	case final >= 0.7:
		return "high"
	case final >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
