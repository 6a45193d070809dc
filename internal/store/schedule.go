package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"newswatch/internal/config"
	"newswatch/internal/news"
)

// DefaultScheduleTime seeds the singleton row when none exists yet.
const DefaultScheduleTime = "08:00"

// GetSchedule returns the singleton schedule row, creating it with defaults
// on first access.
func (s *Store) GetSchedule(ctx context.Context) (news.ScheduleConfig, error) {
	var cfg news.ScheduleConfig
	err := s.pool.QueryRow(ctx,
		`SELECT run_time, enabled, updated_at FROM schedule_config WHERE id = 1`,
	).Scan(&cfg.Time, &cfg.Enabled, &cfg.UpdatedAt)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return news.ScheduleConfig{}, fmt.Errorf("get schedule: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO schedule_config (id, run_time, enabled)
		 VALUES (1, $1, TRUE)
		 ON CONFLICT (id) DO UPDATE SET run_time = schedule_config.run_time
		 RETURNING run_time, enabled, updated_at`,
		DefaultScheduleTime,
	).Scan(&cfg.Time, &cfg.Enabled, &cfg.UpdatedAt)
	if err != nil {
		return news.ScheduleConfig{}, fmt.Errorf("seed schedule: %w", err)
	}
	return cfg, nil
}

// UpdateSchedule overwrites the singleton schedule row. The time must be a
// valid HH:MM wall-clock string; the scheduler arms a cron entry from it.
func (s *Store) UpdateSchedule(ctx context.Context, cfg news.ScheduleConfig) error {
	if _, err := config.ParseClockTime(cfg.Time); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schedule_config (id, run_time, enabled, updated_at)
		 VALUES (1, $1, $2, now())
		 ON CONFLICT (id) DO UPDATE
		 SET run_time = EXCLUDED.run_time,
		     enabled = EXCLUDED.enabled,
		     updated_at = now()`,
		cfg.Time, cfg.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}
