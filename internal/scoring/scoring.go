// Package scoring computes read-time relevance scores. Scores are never
// persisted as authoritative because freshness depends on the evaluation
// instant.
package scoring

import (
	"math"
	"time"
	"unicode/utf8"

	"newswatch/internal/news"
)

// Content-length shape: bodies inside the plateau score full marks, very
// short snippets and bloated dumps are both penalized.
const (
	contentFloor   = 200
	contentCeiling = 2000
	contentFade    = 4000
)

// Title sweet spot in runes.
const (
	titleFloor   = 10
	titleCeiling = 50
	titleFade    = 100
)

// defaultAuthority applies to sources missing from the table.
const defaultAuthority = 0.8

// Weights holds the blend parameters.
type Weights struct {
	Quality   float64
	Freshness float64
}

// Options configures a Scorer.
type Options struct {
	Weights Weights
	// Lambda is the hourly exponential decay rate for freshness.
	Lambda float64
	// Adaptive shifts weight toward freshness for short articles and
	// toward quality for long ones. Off by default; the fixed weights are
	// the canonical formula.
	Adaptive bool
	// Authority maps sources to a [0,1] multiplier. Nil uses the default
	// table.
	Authority map[news.Source]float64
}

// Scorer evaluates articles against a fixed parameter set.
type Scorer struct {
	weights   Weights
	lambda    float64
	adaptive  bool
	authority map[news.Source]float64
}

// DefaultAuthority is the built-in per-source authority table.
func DefaultAuthority() map[news.Source]float64 {
	return map[news.Source]float64{
		news.SourceKr36:    0.95,
		news.SourceHuxiu:   0.9,
		news.SourceGoogle:  0.9,
		news.SourceTavily:  0.85,
		news.SourceBing:    0.8,
		news.SourceYahoo:   0.75,
		news.SourceBaidu:   0.75,
		news.SourceToutiao: 0.7,
	}
}

// New builds a Scorer. Weights are normalized to sum to one.
func New(opts Options) *Scorer {
	w := opts.Weights
	total := w.Quality + w.Freshness
	if total <= 0 {
		w = Weights{Quality: 0.6, Freshness: 0.4}
		total = 1
	}
	w.Quality /= total
	w.Freshness /= total

	lambda := opts.Lambda
	if lambda <= 0 {
		lambda = 0.1
	}
	authority := opts.Authority
	if authority == nil {
		authority = DefaultAuthority()
	}
	return &Scorer{
		weights:   w,
		lambda:    lambda,
		adaptive:  opts.Adaptive,
		authority: authority,
	}
}

// Score evaluates one article at the given instant. For a fixed article the
// result is deterministic in now and non-increasing as now advances.
func (s *Scorer) Score(article news.Article, now time.Time) news.ScoreResult {
	quality := s.qualityScore(article)
	freshness := s.freshnessScore(article.CrawledAt, now)

	w := s.weights
	if s.adaptive {
		w = adaptWeights(w, utf8.RuneCountInString(article.Content))
	}

	return news.ScoreResult{
		Quality:   quality,
		Freshness: freshness,
		Final:     w.Quality*quality + w.Freshness*freshness,
	}
}

func (s *Scorer) freshnessScore(crawledAt, now time.Time) float64 {
	hours := now.Sub(crawledAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return clamp01(math.Exp(-s.lambda * hours))
}

func (s *Scorer) qualityScore(article news.Article) float64 {
	content := contentLengthScore(utf8.RuneCountInString(article.Content))
	title := titleLengthScore(utf8.RuneCountInString(article.Title))

	authority, ok := s.authority[article.Source]
	if !ok {
		authority = defaultAuthority
	}
	return clamp01((0.6*content + 0.4*title) * authority)
}

// contentLengthScore is a plateau with linear ramps on both sides.
func contentLengthScore(runes int) float64 {
	switch {
	case runes <= 0:
		return 0
	case runes < contentFloor:
		return clamp01(float64(runes) / contentFloor)
	case runes <= contentCeiling:
		return 1
	default:
		return clamp01(1 - float64(runes-contentCeiling)/contentFade)
	}
}

func titleLengthScore(runes int) float64 {
	switch {
	case runes <= 0:
		return 0
	case runes < titleFloor:
		return clamp01(float64(runes) / titleFloor)
	case runes <= titleCeiling:
		return 1
	default:
		return clamp01(1 - float64(runes-titleCeiling)/titleFade)
	}
}

// adaptWeights nudges the blend toward freshness for short bodies and
// toward quality for long ones, keeping the sum at one.
func adaptWeights(w Weights, contentRunes int) Weights {
	const shift = 0.15
	switch {
	case contentRunes < contentFloor:
		w.Freshness += shift
		w.Quality -= shift
	case contentRunes > contentCeiling:
		w.Quality += shift
		w.Freshness -= shift
	}
	if w.Quality < 0 {
		w.Quality = 0
	}
	if w.Freshness < 0 {
		w.Freshness = 0
	}
	total := w.Quality + w.Freshness
	if total <= 0 {
		return Weights{Quality: 0.5, Freshness: 0.5}
	}
	w.Quality /= total
	w.Freshness /= total
	return w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
