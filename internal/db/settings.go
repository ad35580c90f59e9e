package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSettings reads the singleton settings row. A missing row returns the
// zero Settings (disabled, no overrides) rather than an error, so a fresh
// database starts in a safe state.
func (db *DB) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := db.pool.QueryRow(ctx,
		`SELECT enabled, daily_budget_override, max_searches_per_run,
		        max_results_per_search, target_library_size, fallback_topics
		 FROM curation_settings WHERE id = 1`,
	).Scan(&s.Enabled, &s.DailyBudgetOverride, &s.MaxSearchesPerRun,
		&s.MaxResultsPerSearch, &s.TargetLibrarySize, &s.FallbackTopics)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// SetEnabled persists the feature-enabled flag.
func (db *DB) SetEnabled(ctx context.Context, enabled bool) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO curation_settings (id, enabled) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled`,
		enabled)
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	return nil
}

// UpdateSettings persists the full settings row.
func (db *DB) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO curation_settings
		     (id, enabled, daily_budget_override, max_searches_per_run,
		      max_results_per_search, target_library_size, fallback_topics)
		 VALUES (1, $1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET enabled = EXCLUDED.enabled,
		     daily_budget_override = EXCLUDED.daily_budget_override,
		     max_searches_per_run = EXCLUDED.max_searches_per_run,
		     max_results_per_search = EXCLUDED.max_results_per_search,
		     target_library_size = EXCLUDED.target_library_size,
		     fallback_topics = EXCLUDED.fallback_topics`,
		s.Enabled, s.DailyBudgetOverride, s.MaxSearchesPerRun,
		s.MaxResultsPerSearch, s.TargetLibrarySize, s.FallbackTopics)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
