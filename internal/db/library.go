package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// VideoExists reports whether a video id has already been ingested.
// This is the funnel's O(1) duplicate check and must stay cheap.
func (db *DB) VideoExists(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE video_id = $1)`, videoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check video existence: %w", err)
	}
	return exists, nil
}

// InsertVideo persists an admitted video and bumps the owning source's
// library count in the same transaction.
func (db *DB) InsertVideo(ctx context.Context, v *Video) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx,
		`INSERT INTO videos (video_id, title, channel_id, channel_title,
		     duration_seconds, view_count, like_count, quality_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (video_id) DO NOTHING`,
		v.VideoID, v.Title, v.ChannelID, v.ChannelTitle,
		v.DurationSeconds, v.ViewCount, v.LikeCount, v.QualityScore)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE source_states SET library_count = library_count + 1
		 WHERE channel_id = $1`, v.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to bump source library count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit video insert: %w", err)
	}
	return nil
}

// GetVideo loads one library record. Returns (nil, nil) when absent.
func (db *DB) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	var v Video
	err := db.pool.QueryRow(ctx,
		`SELECT video_id, title, channel_id, channel_title, duration_seconds,
		        view_count, like_count, quality_score, admitted_at
		 FROM videos WHERE video_id = $1`, videoID).Scan(
		&v.VideoID, &v.Title, &v.ChannelID, &v.ChannelTitle, &v.DurationSeconds,
		&v.ViewCount, &v.LikeCount, &v.QualityScore, &v.AdmittedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

// CountVideos returns the total library size.
func (db *DB) CountVideos(ctx context.Context) (int, error) {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}
