package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"newswatch/internal/news"
)

// CreateReport records a generated report artifact. A rerun for the same
// keyword and date replaces the previous artifact record.
func (s *Store) CreateReport(ctx context.Context, report news.Report) (int64, error) {
	if report.Keyword == "" || report.Date == "" {
		return 0, fmt.Errorf("report keyword and date are required")
	}
	query, args, err := s.builder.
		Insert("reports").
		Columns("keyword", "report_date", "artifact_path", "article_count").
		Values(report.Keyword, report.Date, report.FilePath, report.ArticleCount).
		Suffix(`ON CONFLICT (keyword, report_date) DO UPDATE
			SET artifact_path = EXCLUDED.artifact_path,
			    article_count = EXCLUDED.article_count,
			    created_at = now()
			RETURNING id`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

// ListReports returns the newest reports.
func (s *Store) ListReports(ctx context.Context, limit int) ([]news.Report, error) {
	q := s.builder.
		Select("id", "keyword", "report_date", "artifact_path", "article_count", "created_at").
		From("reports").
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []news.Report
	for rows.Next() {
		var r news.Report
		if err := rows.Scan(&r.ID, &r.Keyword, &r.Date, &r.FilePath,
			&r.ArticleCount, &r.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// GetReportByKeywordDate fetches one report record.
func (s *Store) GetReportByKeywordDate(ctx context.Context, keyword, date string) (news.Report, error) {
	query, args, err := s.builder.
		Select("id", "keyword", "report_date", "artifact_path", "article_count", "created_at").
		From("reports").
		Where(sq.Eq{"keyword": keyword, "report_date": date}).
		ToSql()
	if err != nil {
		return news.Report{}, fmt.Errorf("build get: %w", err)
	}
	var r news.Report
	err = s.pool.QueryRow(ctx, query, args...).Scan(&r.ID, &r.Keyword, &r.Date,
		&r.FilePath, &r.ArticleCount, &r.GeneratedAt)
	if err != nil {
		return news.Report{}, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}
