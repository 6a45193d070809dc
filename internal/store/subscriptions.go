package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"newswatch/internal/news"
)

// Create adds a subscription keyword. The bool reports whether a new row was
// created; an existing keyword returns its id with created=false.
func (s *Store) Create(ctx context.Context, keyword string) (int64, bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return 0, false, fmt.Errorf("keyword is required")
	}
	query, args, err := s.builder.
		Insert("subscriptions").
		Columns("keyword").
		Values(keyword).
		Suffix("ON CONFLICT (keyword) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("insert subscription: %w", err)
	}

	query, args, err = s.builder.
		Select("id").From("subscriptions").Where(sq.Eq{"keyword": keyword}).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build lookup: %w", err)
	}
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("lookup subscription: %w", err)
	}
	return id, false, nil
}

// ListSubscriptions returns every subscription.
func (s *Store) ListSubscriptions(ctx context.Context) ([]news.Subscription, error) {
	return s.listSubscriptions(ctx, false)
}

// ListEnabled returns only enabled subscriptions, the set a crawl run
// iterates.
func (s *Store) ListEnabled(ctx context.Context) ([]news.Subscription, error) {
	return s.listSubscriptions(ctx, true)
}

func (s *Store) listSubscriptions(ctx context.Context, enabledOnly bool) ([]news.Subscription, error) {
	q := s.builder.
		Select("id", "keyword", "enabled", "created_at").
		From("subscriptions").
		OrderBy("id")
	if enabledOnly {
		q = q.Where(sq.Eq{"enabled": true})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []news.Subscription
	for rows.Next() {
		var sub news.Subscription
		if err := rows.Scan(&sub.ID, &sub.Keyword, &sub.Enabled, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// SetEnabled toggles a subscription.
func (s *Store) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query, args, err := s.builder.
		Update("subscriptions").
		Set("enabled", enabled).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no subscription with id %d", id)
	}
	return nil
}

// Delete removes a subscription.
func (s *Store) Delete(ctx context.Context, id int64) error {
	query, args, err := s.builder.
		Delete("subscriptions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no subscription with id %d", id)
	}
	return nil
}
