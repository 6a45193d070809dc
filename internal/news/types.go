// Package news defines core types shared across subsystems.
package news

import (
	"time"
)

// Source identifies the provider an article was fetched from.
type Source string

// Known provider names persisted in the article store.
const (
	SourceBaidu   Source = "baidu"
	SourceBing    Source = "bing"
	SourceYahoo   Source = "yahoo"
	SourceGoogle  Source = "google"
	SourceTavily  Source = "tavily"
	SourceToutiao Source = "toutiao"
	SourceKr36    Source = "kr36"
	SourceHuxiu   Source = "huxiu"
)

// Article is a crawled news item. Identity is the canonical URL; rows are
// immutable once persisted, extension data lives in AnalysisResult.
type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	Source      Source     `json:"source"`
	Keyword     string     `json:"keyword"`
	CrawledAt   time.Time  `json:"crawled_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchStatus string     `json:"fetch_status,omitempty"`
}

// FetchSuccess is the fetch_status recorded for articles that arrived through
// a completed fetch. Fetchers only emit articles on success, so this is the
// value every new row carries.
const FetchSuccess = "success"

// AnalysisStatus is the lifecycle state of the classifier pass over an article.
type AnalysisStatus string

// Analysis status values persisted alongside articles.
const (
	AnalysisPending AnalysisStatus = "pending"
	AnalysisSuccess AnalysisStatus = "success"
	AnalysisFailed  AnalysisStatus = "failed"
)

// DefaultImportance is persisted when the classifier cannot produce a score.
const DefaultImportance = 50.0

// AnalysisResult is the classifier output joined to an Article by URL.
// It is produced exactly once per article, asynchronously after insert.
type AnalysisResult struct {
	URL                  string         `json:"url"`
	EstimatedPublishedAt *time.Time     `json:"estimated_published_at,omitempty"`
	EstimatedSource      string         `json:"estimated_source,omitempty"`
	ImportanceScore      float64        `json:"importance_score"`
	Status               AnalysisStatus `json:"status"`
	AnalyzedAt           time.Time      `json:"analyzed_at"`
}

// ScoreResult is computed at read time and never persisted as authoritative;
// freshness depends on the evaluation instant.
type ScoreResult struct {
	Quality   float64 `json:"quality_score"`
	Freshness float64 `json:"freshness_score"`
	Final     float64 `json:"final_score"`
}

// Subscription is a keyword the scheduler crawls for.
type Subscription struct {
	ID        int64     `json:"id"`
	Keyword   string    `json:"keyword"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleConfig is the singleton row controlling the daily trigger.
type ScheduleConfig struct {
	Time      string    `json:"time"` // wall clock, HH:MM
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report records a generated report artifact.
type Report struct {
	ID           int64     `json:"id"`
	Keyword      string    `json:"keyword"`
	Date         string    `json:"date"` // YYYY-MM-DD
	FilePath     string    `json:"file_path"`
	ArticleCount int       `json:"article_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// InsertResult reports the outcome of a dedup-aware insert.
type InsertResult struct {
	Inserted bool  `json:"inserted"`
	ID       int64 `json:"id"`
}

// RankedArticle is an article selected for a report, with the refined
// title/summary the ranker produced.
type RankedArticle struct {
	Article  Article `json:"article"`
	Priority string  `json:"priority"` // high | medium | low
	Summary  string  `json:"summary"`
}

// ResultGroup tags a fetch result set with its originating keyword and
// provider for downstream attribution.
type ResultGroup struct {
	Keyword  string
	Source   Source
	Articles []Article
}
