package news

import (
	"context"
	"time"
)

// Fetcher fetches articles for a keyword from one provider.
//
// Implementations are fail-soft: any network, parse, or provider error is
// handled internally and yields an empty slice, never an error or a panic.
type Fetcher interface {
	Source() Source
	Fetch(ctx context.Context, keyword string, maxResults int) []Article
}

// ArticleStore persists crawled articles and their analysis extension rows.
type ArticleStore interface {
	// InsertIfAbsent inserts the article unless its URL already exists.
	// Concurrent attempts for the same URL resolve to exactly one winner;
	// losers observe Inserted=false. Dedup relies on the storage-level
	// uniqueness constraint, not application locking.
	InsertIfAbsent(ctx context.Context, article Article) (InsertResult, error)
	ListByKeyword(ctx context.Context, keyword string, limit int) ([]Article, error)
	ListRecentByKeyword(ctx context.Context, keyword string, since time.Time, limit int) ([]Article, error)
	List(ctx context.Context, filter ArticleFilter) ([]Article, error)
	// ListPendingAnalysis returns articles whose classifier pass has not
	// completed, oldest first.
	ListPendingAnalysis(ctx context.Context, limit int) ([]Article, error)
	SaveAnalysis(ctx context.Context, result AnalysisResult) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArticleFilter narrows List results.
type ArticleFilter struct {
	Keyword string
	Source  Source
	Since   time.Time
	Limit   int
}

// SubscriptionStore manages crawl keywords.
type SubscriptionStore interface {
	Create(ctx context.Context, keyword string) (int64, bool, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	ListEnabled(ctx context.Context) ([]Subscription, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// ScheduleStore reads and writes the singleton schedule row.
type ScheduleStore interface {
	GetSchedule(ctx context.Context) (ScheduleConfig, error)
	UpdateSchedule(ctx context.Context, cfg ScheduleConfig) error
}

// ReportStore records generated report artifacts.
type ReportStore interface {
	CreateReport(ctx context.Context, report Report) (int64, error)
	ListReports(ctx context.Context, limit int) ([]Report, error)
	GetReportByKeywordDate(ctx context.Context, keyword, date string) (Report, error)
}

// Classifier estimates article metadata. It must never block article
// insertion; failure yields a neutral default result.
type Classifier interface {
	Analyze(ctx context.Context, title, content string, crawledAt time.Time) (AnalysisResult, error)
}

// Ranker selects and refines the articles worth reporting. Callers fall back
// to a stable, order-preserving truncation when it errors.
type Ranker interface {
	Rank(ctx context.Context, articles []Article, keyword string, targetCount int) ([]RankedArticle, error)
}

// Renderer produces a report artifact and returns its path.
type Renderer interface {
	Render(keyword, date string, articles []RankedArticle, summary string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
