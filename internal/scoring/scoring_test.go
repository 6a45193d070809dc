package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newswatch/internal/news"
)

func defaultScorer() *Scorer {
	return New(Options{
		Weights: Weights{Quality: 0.6, Freshness: 0.4},
		Lambda:  0.1,
	})
}

func articleWith(content, title string, source news.Source, crawledAt time.Time) news.Article {
	return news.Article{
		Title:     title,
		Content:   content,
		Source:    source,
		CrawledAt: crawledAt,
	}
}

func TestScore_FreshnessDecaysMonotonically(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	t1 := now.Add(-1 * time.Hour)
	t2 := now.Add(-3 * time.Hour)

	early := s.Score(articleWith("same body", "same headline here", news.SourceBing, t1), now)
	late := s.Score(articleWith("same body", "same headline here", news.SourceBing, t2), now)

	require.Greater(t, early.Freshness, late.Freshness)
}

func TestScore_NonIncreasingInNow(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	crawled := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	article := articleWith(strings.Repeat("x", 500), "a headline of decent length", news.SourceKr36, crawled)

	prev := s.Score(article, crawled).Final
	for h := 1; h <= 48; h++ {
		cur := s.Score(article, crawled.Add(time.Duration(h)*time.Hour)).Final
		require.LessOrEqual(t, cur, prev, "score must never rise as the article ages")
		prev = cur
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	article := articleWith("body text", "headline text", news.SourceYahoo, now.Add(-5*time.Hour))

	first := s.Score(article, now)
	second := s.Score(article, now)
	require.Equal(t, first, second)
}

func TestScore_AllComponentsClamped(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	extremes := []news.Article{
		articleWith("", "", news.SourceBing, now.Add(-1000*time.Hour)),
		articleWith(strings.Repeat("x", 50000), strings.Repeat("t", 500), news.SourceKr36, now),
		// A future crawl timestamp must not push freshness past one.
		articleWith("body", "headline", news.SourceBing, now.Add(2*time.Hour)),
	}
	for _, a := range extremes {
		got := s.Score(a, now)
		require.GreaterOrEqual(t, got.Quality, 0.0)
		require.LessOrEqual(t, got.Quality, 1.0)
		require.GreaterOrEqual(t, got.Freshness, 0.0)
		require.LessOrEqual(t, got.Freshness, 1.0)
		require.GreaterOrEqual(t, got.Final, 0.0)
		require.LessOrEqual(t, got.Final, 1.0)
	}
}

func TestScore_LongerBodyBeatsStub(t *testing.T) {
	t.Parallel()

	s := New(Options{
		Weights: Weights{Quality: 0.6, Freshness: 0.4},
		Lambda:  0.1,
	})
	crawled := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	now := crawled.Add(2 * time.Hour)

	stub := articleWith(strings.Repeat("a", 50), "short", news.SourceBing, crawled)
	full := articleWith(strings.Repeat("b", 1200), "well formed headline length", news.SourceKr36, crawled)

	stubScore := s.Score(stub, now)
	fullScore := s.Score(full, now)

	require.Greater(t, fullScore.Quality, stubScore.Quality)
	require.Greater(t, fullScore.Final, stubScore.Final)
	require.InDelta(t, stubScore.Freshness, fullScore.Freshness, 1e-9, "same age gives same freshness")
}

func TestScore_SourceAuthorityOrdersTies(t *testing.T) {
	t.Parallel()

	s := defaultScorer()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	crawled := now.Add(-1 * time.Hour)
	body := strings.Repeat("x", 500)
	title := "a headline of decent length"

	kr := s.Score(articleWith(body, title, news.SourceKr36, crawled), now)
	toutiao := s.Score(articleWith(body, title, news.SourceToutiao, crawled), now)
	require.Greater(t, kr.Quality, toutiao.Quality)

	unknown := s.Score(articleWith(body, title, news.Source("somewhere"), crawled), now)
	require.Greater(t, unknown.Quality, 0.0)
}

func TestContentLengthScore(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, contentLengthScore(0))
	require.InDelta(t, 0.25, contentLengthScore(50), 1e-9)
	require.Equal(t, 1.0, contentLengthScore(200))
	require.Equal(t, 1.0, contentLengthScore(2000))
	require.Less(t, contentLengthScore(3000), 1.0)
	require.Equal(t, 0.0, contentLengthScore(10000))
}

func TestTitleLengthScore(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, titleLengthScore(0))
	require.InDelta(t, 0.5, titleLengthScore(5), 1e-9)
	require.Equal(t, 1.0, titleLengthScore(10))
	require.Equal(t, 1.0, titleLengthScore(50))
	require.Less(t, titleLengthScore(90), 1.0)
}

func TestNew_NormalizesWeights(t *testing.T) {
	t.Parallel()

	s := New(Options{Weights: Weights{Quality: 3, Freshness: 1}, Lambda: 0.1})
	require.InDelta(t, 0.75, s.weights.Quality, 1e-9)
	require.InDelta(t, 0.25, s.weights.Freshness, 1e-9)
}

func TestAdaptWeights(t *testing.T) {
	t.Parallel()

	base := Weights{Quality: 0.6, Freshness: 0.4}

	short := adaptWeights(base, 50)
	require.Greater(t, short.Freshness, base.Freshness)

	long := adaptWeights(base, 5000)
	require.Greater(t, long.Quality, base.Quality)

	mid := adaptWeights(base, 500)
	require.Equal(t, base, mid)

	require.InDelta(t, 1.0, short.Quality+short.Freshness, 1e-9)
	require.InDelta(t, 1.0, long.Quality+long.Freshness, 1e-9)
}
