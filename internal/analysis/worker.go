// Package analysis drains the post-admission queue: each admitted video is
// classified by an LLM and the validated result is stored on its queue entry.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/llm"
	"github.com/jonathan/video-curator/internal/schemas"
)

// resultSchema is the contract the LLM's classification must satisfy before
// it is persisted.
const resultSchema = `{
	"type": "object",
	"required": ["is_instructional", "topics", "difficulty", "summary"],
	"properties": {
		"is_instructional": {"type": "boolean"},
		"topics": {
			"type": "array",
			"items": {"type": "string"},
			"minItems": 1,
			"maxItems": 5
		},
		"difficulty": {"enum": ["beginner", "intermediate", "advanced"]},
		"summary": {"type": "string", "minLength": 1}
	}
}`

// Result is the parsed classification for one video.
type Result struct {
	IsInstructional bool     `json:"is_instructional"`
	Topics          []string `json:"topics"`
	Difficulty      string   `json:"difficulty"`
	Summary         string   `json:"summary"`
}

// Store is the queue and library persistence the worker needs.
type Store interface {
	ListPendingAnalysis(ctx context.Context, limit, maxAttempts int) ([]db.AnalysisEntry, error)
	GetVideo(ctx context.Context, videoID string) (*db.Video, error)
	CompleteAnalysis(ctx context.Context, videoID string, result []byte) error
	FailAnalysis(ctx context.Context, videoID, errMsg string) error
}

const (
	defaultConcurrency = 4
	defaultMaxAttempts = 3
)

// Worker processes pending analysis entries with bounded concurrency.
type Worker struct {
	store       Store
	client      llm.Client
	concurrency int
	maxAttempts int
}

// NewWorker creates a worker. Zero concurrency selects the default.
func NewWorker(store Store, client llm.Client, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Worker{
		store:       store,
		client:      client,
		concurrency: concurrency,
		maxAttempts: defaultMaxAttempts,
	}
}

// ProcessPending drains up to limit queue entries and returns how many were
// processed and how many failed. A failed entry stays queued until it runs
// out of attempts; failures never interrupt the batch.
func (w *Worker) ProcessPending(ctx context.Context, limit int) (processed, failed int, err error) {
	entries, err := w.store.ListPendingAnalysis(ctx, limit, w.maxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending analysis: %w", err)
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	var mu sync.Mutex
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			perr := w.processEntry(gCtx, entry)
			mu.Lock()
			defer mu.Unlock()
			if perr != nil {
				failed++
				log.Printf("[analysis] %s failed (attempt %d): %v", entry.VideoID, entry.Attempts+1, perr)
			} else {
				processed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return processed, failed, err
	}
	return processed, failed, nil
}

// processEntry classifies one video and records the outcome on its entry.
func (w *Worker) processEntry(ctx context.Context, entry db.AnalysisEntry) error {
	video, err := w.store.GetVideo(ctx, entry.VideoID)
	if err != nil {
		return w.fail(ctx, entry.VideoID, fmt.Errorf("failed to load video: %w", err))
	}
	if video == nil {
		return w.fail(ctx, entry.VideoID, fmt.Errorf("video no longer in library"))
	}

	prompt := llm.BuildExtractionPrompt(llm.VideoAnalysisSchema(), promptInput(video))
	raw, err := w.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return w.fail(ctx, entry.VideoID, fmt.Errorf("generation failed: %w", err))
	}

	if err := schemas.ValidateJSONString(resultSchema, raw); err != nil {
		return w.fail(ctx, entry.VideoID, fmt.Errorf("invalid analysis result: %w", err))
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return w.fail(ctx, entry.VideoID, fmt.Errorf("failed to parse analysis result: %w", err))
	}

	if err := w.store.CompleteAnalysis(ctx, entry.VideoID, []byte(raw)); err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}
	return nil
}

// fail records the failure on the entry and returns the original error so the
// batch counters see it.
func (w *Worker) fail(ctx context.Context, videoID string, cause error) error {
	if err := w.store.FailAnalysis(ctx, videoID, cause.Error()); err != nil {
		log.Printf("[analysis] failed to record failure for %s: %v", videoID, err)
	}
	return cause
}

// promptInput flattens the video metadata the classifier may rely on.
func promptInput(v *db.Video) string {
	minutes := v.DurationSeconds / 60
	return fmt.Sprintf("Title: %s\nChannel: %s\nDuration: %d minutes\nViews: %d\nLikes: %d",
		v.Title, v.ChannelTitle, minutes, v.ViewCount, v.LikeCount)
}
