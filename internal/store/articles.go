package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"newswatch/internal/news"
)

var articleColumns = []string{
	"id", "title", "url", "content", "source", "keyword",
	"crawled_at", "published_at", "fetch_status",
}

// InsertIfAbsent inserts the article unless its URL is already stored.
// The articles.url UNIQUE constraint arbitrates concurrent writers; when the
// row exists the stored version wins and the new one is discarded.
func (s *Store) InsertIfAbsent(ctx context.Context, article news.Article) (news.InsertResult, error) {
	if article.URL == "" {
		return news.InsertResult{}, fmt.Errorf("article url is required")
	}
	status := article.FetchStatus
	if status == "" {
		status = news.FetchSuccess
	}
	query, args, err := s.builder.
		Insert("articles").
		Columns("title", "url", "content", "source", "keyword", "crawled_at", "published_at", "fetch_status").
		Values(article.Title, article.URL, article.Content, string(article.Source),
			article.Keyword, article.CrawledAt, article.PublishedAt, status).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return news.InsertResult{}, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, query, args...).Scan(&id)
	if err == nil {
		return news.InsertResult{Inserted: true, ID: id}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return news.InsertResult{}, fmt.Errorf("insert article: %w", err)
	}

	// Conflict path: another writer owns this URL. Look the row up so the
	// caller still gets an identity back.
	query, args, err = s.builder.
		Select("id").From("articles").Where(sq.Eq{"url": article.URL}).ToSql()
	if err != nil {
		return news.InsertResult{}, fmt.Errorf("build lookup: %w", err)
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return news.InsertResult{}, fmt.Errorf("lookup existing article: %w", err)
	}
	return news.InsertResult{Inserted: false, ID: id}, nil
}

// List returns articles matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter news.ArticleFilter) ([]news.Article, error) {
	q := s.builder.
		Select(articleColumns...).
		From("articles").
		OrderBy("crawled_at DESC")
	if filter.Keyword != "" {
		q = q.Where(sq.Eq{"keyword": filter.Keyword})
	}
	if filter.Source != "" {
		q = q.Where(sq.Eq{"source": string(filter.Source)})
	}
	if !filter.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"crawled_at": filter.Since})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []news.Article
	for rows.Next() {
		var a news.Article
		var source string
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &source,
			&a.Keyword, &a.CrawledAt, &a.PublishedAt, &a.FetchStatus); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Source = news.Source(source)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// ListByKeyword returns the newest articles for a keyword.
func (s *Store) ListByKeyword(ctx context.Context, keyword string, limit int) ([]news.Article, error) {
	return s.List(ctx, news.ArticleFilter{Keyword: keyword, Limit: limit})
}

// ListRecentByKeyword returns articles for a keyword crawled since the
// given instant.
func (s *Store) ListRecentByKeyword(ctx context.Context, keyword string, since time.Time, limit int) ([]news.Article, error) {
	return s.List(ctx, news.ArticleFilter{Keyword: keyword, Since: since, Limit: limit})
}

// ListPendingAnalysis returns articles still awaiting a classifier verdict,
// oldest first, so stalled rows get picked up before fresh ones.
func (s *Store) ListPendingAnalysis(ctx context.Context, limit int) ([]news.Article, error) {
	q := s.builder.
		Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"analysis_status": string(news.AnalysisPending)}).
		OrderBy("crawled_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending articles: %w", err)
	}
	defer rows.Close()

	var articles []news.Article
	for rows.Next() {
		var a news.Article
		var source string
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &source,
			&a.Keyword, &a.CrawledAt, &a.PublishedAt, &a.FetchStatus); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		a.Source = news.Source(source)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending articles: %w", err)
	}
	return articles, nil
}

// SaveAnalysis writes the classifier verdict onto the article row.
func (s *Store) SaveAnalysis(ctx context.Context, result news.AnalysisResult) error {
	if result.URL == "" {
		return fmt.Errorf("analysis url is required")
	}
	query, args, err := s.builder.
		Update("articles").
		Set("analysis_status", string(result.Status)).
		Set("importance_score", result.ImportanceScore).
		Set("estimated_source", nullIfEmpty(result.EstimatedSource)).
		Set("estimated_published_at", result.EstimatedPublishedAt).
		Set("analyzed_at", result.AnalyzedAt).
		Where(sq.Eq{"url": result.URL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build analysis update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no article with url %q", result.URL)
	}
	return nil
}

// DeleteOlderThan removes articles crawled before cutoff and returns the
// number of rows dropped.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.builder.
		Delete("articles").
		Where(sq.Lt{"crawled_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old articles: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
