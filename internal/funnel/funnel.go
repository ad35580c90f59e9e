// Package funnel applies the ordered acceptance filters to video candidates.
package funnel

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/platform"
)

// Reason identifies which filter rejected a candidate.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonDuplicate
	ReasonTooShort
	ReasonTooLong
	ReasonNonInstructional
	ReasonLowQuality
)

func (r Reason) String() string {
	switch r {
	case ReasonDuplicate:
		return "duplicate"
	case ReasonTooShort:
		return "too_short"
	case ReasonTooLong:
		return "too_long"
	case ReasonNonInstructional:
		return "non_instructional"
	case ReasonLowQuality:
		return "low_quality"
	default:
		return "none"
	}
}

// Verdict is the funnel's decision for one candidate.
type Verdict struct {
	Admitted bool
	Reason   Reason
	Score    float64
}

// Counters accumulates per-reason rejection counts for one run. Add is the
// single dispatch point; a reject that skips it is a defect.
type Counters struct {
	counts db.SkipCounts
}

// Add increments the counter for the given reason.
func (c *Counters) Add(r Reason) {
	switch r {
	case ReasonDuplicate:
		c.counts.Duplicate++
	case ReasonTooShort:
		c.counts.TooShort++
	case ReasonTooLong:
		c.counts.TooLong++
	case ReasonNonInstructional:
		c.counts.NonInstructional++
	case ReasonLowQuality:
		c.counts.LowQuality++
	}
}

// Snapshot returns the accumulated counts.
func (c *Counters) Snapshot() db.SkipCounts {
	return c.counts
}

// CountersFrom seeds a counter set from previously persisted counts, so a
// resumed run keeps accumulating instead of starting over.
func CountersFrom(s db.SkipCounts) Counters {
	return Counters{counts: s}
}

// Config holds the funnel thresholds.
type Config struct {
	MinDurationSeconds int
	MaxDurationSeconds int
	// QualityThreshold applies to unverified sources; VerifiedThreshold is
	// the relaxed bar for known-good ones.
	QualityThreshold  float64
	VerifiedThreshold float64
}

// DefaultConfig returns the production thresholds: 4 minutes to 90 minutes,
// quality bar 0.5 (0.35 for verified channels).
func DefaultConfig() Config {
	return Config{
		MinDurationSeconds: 4 * 60,
		MaxDurationSeconds: 90 * 60,
		QualityThreshold:   0.5,
		VerifiedThreshold:  0.35,
	}
}

// Store is the persistence surface the funnel needs.
type Store interface {
	VideoExists(ctx context.Context, videoID string) (bool, error)
	InsertVideo(ctx context.Context, v *db.Video) error
	EnqueueAnalysis(ctx context.Context, videoID string) error
}

// nonInstructionalPatterns match titles of content that is video but not a
// lesson: interviews, match footage, promos, vlogs, streams.
var nonInstructionalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\binterview\b`),
	regexp.MustCompile(`(?i)\bpodcast\b`),
	regexp.MustCompile(`(?i)\b(trailer|teaser|promo(tion)?)\b`),
	regexp.MustCompile(`(?i)\b(highlights?|full (match|game|fight))\b`),
	regexp.MustCompile(`(?i)\bvlog\b`),
	regexp.MustCompile(`(?i)\b(live\s?stream|livestream)\b`),
	regexp.MustCompile(`(?i)\breaction\b`),
	regexp.MustCompile(`(?i)\bunboxing\b`),
}

// Funnel evaluates candidates against the ordered filters.
type Funnel struct {
	store Store
	cfg   Config
}

// New creates a funnel with the given store and config.
func New(store Store, cfg Config) *Funnel {
	return &Funnel{store: store, cfg: cfg}
}

// Evaluate runs a candidate through the ordered filters: duplicate, duration
// bounds, title heuristic, quality score. Filters short-circuit cheapest
// first; the duplicate check always runs before anything costly.
// The verified flag selects the relaxed quality bar.
func (f *Funnel) Evaluate(ctx context.Context, cand platform.Candidate, verified bool) (Verdict, error) {
	exists, err := f.store.VideoExists(ctx, cand.VideoID)
	if err != nil {
		return Verdict{}, fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		return Verdict{Reason: ReasonDuplicate}, nil
	}

	if cand.DurationSeconds < f.cfg.MinDurationSeconds {
		return Verdict{Reason: ReasonTooShort}, nil
	}
	if cand.DurationSeconds > f.cfg.MaxDurationSeconds {
		return Verdict{Reason: ReasonTooLong}, nil
	}

	for _, p := range nonInstructionalPatterns {
		if p.MatchString(cand.Title) {
			return Verdict{Reason: ReasonNonInstructional}, nil
		}
	}

	score := QualityScore(cand)
	bar := f.cfg.QualityThreshold
	if verified {
		bar = f.cfg.VerifiedThreshold
	}
	if score < bar {
		return Verdict{Reason: ReasonLowQuality, Score: score}, nil
	}

	return Verdict{Admitted: true, Score: score}, nil
}

// Admit persists an admitted candidate and enqueues it for content analysis.
// An enqueue failure is logged but does not undo the admission; the library
// record exists and enrichment is retried later.
func (f *Funnel) Admit(ctx context.Context, cand platform.Candidate, score float64) error {
	video := &db.Video{
		VideoID:         cand.VideoID,
		Title:           cand.Title,
		ChannelID:       cand.ChannelID,
		ChannelTitle:    cand.ChannelTitle,
		DurationSeconds: cand.DurationSeconds,
		ViewCount:       int64(cand.ViewCount),
		LikeCount:       int64(cand.LikeCount),
		QualityScore:    score,
	}
	if err := f.store.InsertVideo(ctx, video); err != nil {
		return fmt.Errorf("failed to persist admitted video: %w", err)
	}

	if err := f.store.EnqueueAnalysis(ctx, cand.VideoID); err != nil {
		log.Printf("[funnel] enqueue for analysis failed for %s (admission stands): %v", cand.VideoID, err)
	}
	return nil
}
