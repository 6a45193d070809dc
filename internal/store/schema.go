package store

import (
	"context"
	"fmt"
)

// schemaDDL is applied idempotently at startup. The UNIQUE constraint on
// articles.url is the dedup boundary for the whole system.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	keyword TEXT NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ,
	fetch_status TEXT NOT NULL DEFAULT 'success',
	analysis_status TEXT NOT NULL DEFAULT 'pending',
	importance_score DOUBLE PRECISION,
	estimated_source TEXT,
	estimated_published_at TIMESTAMPTZ,
	analyzed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_articles_keyword ON articles (keyword);
CREATE INDEX IF NOT EXISTS idx_articles_crawled_at ON articles (crawled_at);

CREATE TABLE IF NOT EXISTS subscriptions (
	id BIGSERIAL PRIMARY KEY,
	keyword TEXT NOT NULL UNIQUE,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedule_config (
	id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	run_time TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id BIGSERIAL PRIMARY KEY,
	keyword TEXT NOT NULL,
	report_date DATE NOT NULL,
	artifact_path TEXT NOT NULL,
	article_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (keyword, report_date)
);
`

const schemaVersion = 1

// Migrate applies the schema and records the current version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO schema_version (version)
		 SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM schema_version)`,
		schemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}
