package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, kind, status, triggered_by, started_at, completed_at,
	screened, admitted, skip_duplicate, skip_too_short, skip_too_long,
	skip_non_instructional, skip_low_quality, quota_units,
	COALESCE(guardrail_band, ''), COALESCE(trend_alert, ''), error_message`

func scanRun(row pgx.Row) (*CurationRun, error) {
	var run CurationRun
	err := row.Scan(&run.ID, &run.Kind, &run.Status, &run.TriggeredBy,
		&run.StartedAt, &run.CompletedAt, &run.Screened, &run.Admitted,
		&run.SkipCounts.Duplicate, &run.SkipCounts.TooShort,
		&run.SkipCounts.TooLong, &run.SkipCounts.NonInstructional,
		&run.SkipCounts.LowQuality, &run.QuotaUnits,
		&run.GuardrailBand, &run.TrendAlert, &run.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun inserts a new run record in status running and returns it.
func (db *DB) CreateRun(ctx context.Context, kind, triggeredBy string) (*CurationRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`INSERT INTO curation_runs (kind, status, triggered_by)
		 VALUES ($1, 'running', $2)
		 RETURNING `+runColumns,
		kind, triggeredBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID, or (nil, nil) when it does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*CurationRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM curation_runs WHERE id = $1`, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetActiveRun returns the run currently in status running, if any.
func (db *DB) GetActiveRun(ctx context.Context) (*CurationRun, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM curation_runs
		 WHERE status = 'running'
		 ORDER BY started_at DESC LIMIT 1`))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active run: %w", err)
	}
	return run, nil
}

// ListStuckRuns returns runs still marked running whose start time is older
// than the cutoff. These are presumed orphaned by a crashed process.
func (db *DB) ListStuckRuns(ctx context.Context, cutoff time.Time) ([]CurationRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM curation_runs
		 WHERE status = 'running' AND started_at < $1
		 ORDER BY started_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck runs: %w", err)
	}
	defer rows.Close()

	var runs []CurationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// FinalizeRun writes the terminal state of a run: status, counters, quota
// usage, guardrail band and optional error message. Every exit path of the
// orchestrator goes through this exactly once.
func (db *DB) FinalizeRun(ctx context.Context, run *CurationRun) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE curation_runs
		 SET status = $1, completed_at = NOW(),
		     screened = $2, admitted = $3,
		     skip_duplicate = $4, skip_too_short = $5, skip_too_long = $6,
		     skip_non_instructional = $7, skip_low_quality = $8,
		     quota_units = $9, acceptance_rate = $10,
		     guardrail_band = $11, trend_alert = $12, error_message = $13
		 WHERE id = $14`,
		run.Status, run.Screened, run.Admitted,
		run.SkipCounts.Duplicate, run.SkipCounts.TooShort, run.SkipCounts.TooLong,
		run.SkipCounts.NonInstructional, run.SkipCounts.LowQuality,
		run.QuotaUnits, run.AcceptanceRate(), run.GuardrailBand, run.TrendAlert,
		run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

// ListRecentRuns retrieves the most recent runs, newest first.
func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]CurationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM curation_runs
		 ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []CurationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}
