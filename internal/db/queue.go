package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnqueueAnalysis appends a pending-analysis entry for an admitted video.
// Re-enqueueing an already-queued video is a no-op.
func (db *DB) EnqueueAnalysis(ctx context.Context, videoID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO analysis_queue (video_id, status)
		 VALUES ($1, 'pending')
		 ON CONFLICT (video_id) DO NOTHING`,
		videoID)
	if err != nil {
		return fmt.Errorf("failed to enqueue analysis: %w", err)
	}
	return nil
}

// ListPendingAnalysis returns up to limit queue entries awaiting analysis,
// oldest first. Failed entries under the attempt cap are retried.
func (db *DB) ListPendingAnalysis(ctx context.Context, limit, maxAttempts int) ([]AnalysisEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT video_id, status, attempts, last_error, result, created_at, updated_at
		 FROM analysis_queue
		 WHERE (status = 'pending' OR (status = 'failed' AND attempts < $2))
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending analysis: %w", err)
	}
	defer rows.Close()

	var entries []AnalysisEntry
	for rows.Next() {
		var e AnalysisEntry
		if err := rows.Scan(&e.VideoID, &e.Status, &e.Attempts, &e.LastError,
			&e.Result, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CompleteAnalysis stores a validated analysis result and marks the entry
// processed.
func (db *DB) CompleteAnalysis(ctx context.Context, videoID string, result []byte) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analysis_queue
		 SET status = 'processed', result = $1, attempts = attempts + 1,
		     last_error = NULL, updated_at = NOW()
		 WHERE video_id = $2`,
		result, videoID)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}
	return nil
}

// FailAnalysis records a failed analysis attempt with its error message.
func (db *DB) FailAnalysis(ctx context.Context, videoID, errMsg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analysis_queue
		 SET status = 'failed', attempts = attempts + 1, last_error = $1,
		     updated_at = NOW()
		 WHERE video_id = $2`,
		errMsg, videoID)
	if err != nil {
		return fmt.Errorf("failed to record analysis failure: %w", err)
	}
	return nil
}

// GetAnalysisEntry retrieves one queue entry, or (nil, nil) when absent.
func (db *DB) GetAnalysisEntry(ctx context.Context, videoID string) (*AnalysisEntry, error) {
	var e AnalysisEntry
	err := db.pool.QueryRow(ctx,
		`SELECT video_id, status, attempts, last_error, result, created_at, updated_at
		 FROM analysis_queue WHERE video_id = $1`,
		videoID,
	).Scan(&e.VideoID, &e.Status, &e.Attempts, &e.LastError, &e.Result,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis entry: %w", err)
	}
	return &e, nil
}

// CountPendingAnalysis returns how many queue entries await processing.
func (db *DB) CountPendingAnalysis(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis_queue WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending analysis: %w", err)
	}
	return count, nil
}
