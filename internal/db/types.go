package db

import (
	"time"

	"github.com/google/uuid"
)

// Run status constants.
const (
	RunStatusRunning        = "running"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusQuotaExhausted = "quota_exhausted"
)

// Run kind constants.
const (
	RunKindScheduled = "scheduled"
	RunKindManual    = "manual"
)

// CurationRun represents one bounded execution of the acquisition pipeline.
type CurationRun struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	TriggeredBy   string     `json:"triggered_by"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Screened      int        `json:"screened"`
	Admitted      int        `json:"admitted"`
	SkipCounts    SkipCounts `json:"skip_counts"`
	QuotaUnits    int        `json:"quota_units"`
	GuardrailBand string     `json:"guardrail_band,omitempty"`
	// TrendAlert is the guardrail severity recorded when this run's band
	// tripped a warning or a streak escalation. Empty for ordinary runs.
	TrendAlert   string  `json:"trend_alert,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// SkipCounts holds per-reason rejection counters for a run.
type SkipCounts struct {
	Duplicate        int `json:"duplicate"`
	TooShort         int `json:"too_short"`
	TooLong          int `json:"too_long"`
	NonInstructional int `json:"non_instructional"`
	LowQuality       int `json:"low_quality"`
}

// Total returns the sum of all rejection counters.
func (s SkipCounts) Total() int {
	return s.Duplicate + s.TooShort + s.TooLong + s.NonInstructional + s.LowQuality
}

// AcceptanceRate returns admitted/screened, or nil when nothing was screened.
// An empty run has no rate, not a zero rate.
func (r *CurationRun) AcceptanceRate() *float64 {
	if r.Screened == 0 {
		return nil
	}
	rate := float64(r.Admitted) / float64(r.Screened)
	return &rate
}

// QuotaLedger is one row per platform reset-boundary date.
type QuotaLedger struct {
	UsageDate     string    `json:"usage_date"`
	SearchCount   int       `json:"search_count"`
	DetailCount   int       `json:"detail_count"`
	UnitsConsumed int       `json:"units_consumed"`
	DailyBudget   int       `json:"daily_budget"`
	Exhausted     bool      `json:"exhausted"`
	LastResetAt   time.Time `json:"last_reset_at"`
}

// SourceState tracks one curation target (an instructor channel).
type SourceState struct {
	ChannelID            string     `json:"channel_id"`
	ChannelTitle         string     `json:"channel_title"`
	Verified             bool       `json:"verified"`
	LibraryCount         int        `json:"library_count"`
	CooldownUntil        *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveEmptyRuns int        `json:"consecutive_empty_runs"`
	CreatedAt            time.Time  `json:"created_at"`
}

// OnCooldown reports whether the source is excluded from selection at now.
func (s *SourceState) OnCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && s.CooldownUntil.After(now)
}

// Video is a persisted library record.
type Video struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count"`
	QualityScore    float64   `json:"quality_score"`
	AdmittedAt      time.Time `json:"admitted_at"`
}

// Analysis queue status constants.
const (
	AnalysisStatusPending   = "pending"
	AnalysisStatusProcessed = "processed"
	AnalysisStatusFailed    = "failed"
)

// AnalysisEntry is a pending-analysis queue record for an admitted video.
type AnalysisEntry struct {
	VideoID   string     `json:"video_id"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"last_error,omitempty"`
	Result    []byte     `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Settings is the operator-controlled singleton settings row. Zero values
// mean "no override"; effective values are resolved at run-start guard time.
type Settings struct {
	Enabled             bool     `json:"enabled"`
	DailyBudgetOverride int      `json:"daily_budget_override"`
	MaxSearchesPerRun   int      `json:"max_searches_per_run"`
	MaxResultsPerSearch int      `json:"max_results_per_search"`
	TargetLibrarySize   int      `json:"target_library_size"`
	FallbackTopics      []string `json:"fallback_topics"`
}

// RotationRecord is an append-only record of one target touched by one run.
type RotationRecord struct {
	RunID     uuid.UUID `json:"run_id"`
	ChannelID string    `json:"channel_id"`
	Screened  int       `json:"screened"`
	Admitted  int       `json:"admitted"`
	CreatedAt time.Time `json:"created_at"`
}
