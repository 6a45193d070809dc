// Package store provides Postgres-backed persistence for articles,
// subscriptions, schedule state, and generated reports.
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"newswatch/internal/news"
)

// queryer is the pool surface the store needs; pgxmock satisfies it.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var (
	_ news.ArticleStore      = (*Store)(nil)
	_ news.SubscriptionStore = (*Store)(nil)
	_ news.ScheduleStore     = (*Store)(nil)
	_ news.ReportStore       = (*Store)(nil)
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// Store bundles all persistence operations over one shared pool. All writes
// go through this single pool; dedup correctness rests on the articles.url
// uniqueness constraint, not on any application lock.
type Store struct {
	pool    queryer
	logger  *zap.Logger
	builder sq.StatementBuilderType
}

// New connects to Postgres and returns a ready Store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, logger), nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool queryer, logger *zap.Logger) *Store {
	return &Store{
		pool:    pool,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
