package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sourceColumns = `channel_id, channel_title, verified, library_count,
	cooldown_until, consecutive_empty_runs, created_at`

func scanSource(row pgx.Row) (*SourceState, error) {
	var s SourceState
	err := row.Scan(&s.ChannelID, &s.ChannelTitle, &s.Verified, &s.LibraryCount,
		&s.CooldownUntil, &s.ConsecutiveEmptyRuns, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSource registers a curation target or updates its title/verified flag.
func (db *DB) UpsertSource(ctx context.Context, channelID, title string, verified bool) (*SourceState, error) {
	src, err := scanSource(db.pool.QueryRow(ctx,
		`INSERT INTO source_states (channel_id, channel_title, verified)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id) DO UPDATE
		 SET channel_title = EXCLUDED.channel_title, verified = EXCLUDED.verified
		 RETURNING `+sourceColumns,
		channelID, title, verified,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert source: %w", err)
	}
	return src, nil
}

// GetSource retrieves one source state, or (nil, nil) when unknown.
func (db *DB) GetSource(ctx context.Context, channelID string) (*SourceState, error) {
	src, err := scanSource(db.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM source_states WHERE channel_id = $1`,
		channelID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// ListSelectableSources returns all sources not under an active cooldown,
// ordered by library representation (most under-represented first).
func (db *DB) ListSelectableSources(ctx context.Context, now time.Time) ([]SourceState, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM source_states
		 WHERE cooldown_until IS NULL OR cooldown_until <= $1
		 ORDER BY library_count ASC, created_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list selectable sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceState
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, nil
}

// ListSources returns all sources, including cooled-down ones.
func (db *DB) ListSources(ctx context.Context) ([]SourceState, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM source_states ORDER BY channel_title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceState
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, nil
}

// CountSelectableSources returns how many targets are currently eligible.
func (db *DB) CountSelectableSources(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_states
		 WHERE cooldown_until IS NULL OR cooldown_until <= $1`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count selectable sources: %w", err)
	}
	return count, nil
}

// SetSourceCooldown places a target on cooldown and increments its
// consecutive-empty-run counter.
func (db *DB) SetSourceCooldown(ctx context.Context, channelID string, until time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE source_states
		 SET cooldown_until = $1, consecutive_empty_runs = consecutive_empty_runs + 1
		 WHERE channel_id = $2`,
		until, channelID)
	if err != nil {
		return fmt.Errorf("failed to set source cooldown: %w", err)
	}
	return nil
}

// ClearSourceEmptyRuns resets the empty-run counter after an admitting run.
func (db *DB) ClearSourceEmptyRuns(ctx context.Context, channelID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE source_states
		 SET consecutive_empty_runs = 0, cooldown_until = NULL
		 WHERE channel_id = $1`,
		channelID)
	if err != nil {
		return fmt.Errorf("failed to clear source empty runs: %w", err)
	}
	return nil
}

// RecordRotation appends one rotation-history row for a run/target pair.
func (db *DB) RecordRotation(ctx context.Context, runID uuid.UUID, channelID string, screened, admitted int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO rotation_history (run_id, channel_id, screened, admitted)
		 VALUES ($1, $2, $3, $4)`,
		runID, channelID, screened, admitted)
	if err != nil {
		return fmt.Errorf("failed to record rotation: %w", err)
	}
	return nil
}
