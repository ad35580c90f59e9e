package curator

import (
	"context"
	"fmt"

	"github.com/jonathan/video-curator/internal/db"
)

// Status is the operator-facing snapshot of the curation system.
type Status struct {
	Enabled         bool            `json:"enabled"`
	LibrarySize     int             `json:"library_size"`
	TargetSize      int             `json:"target_library_size"`
	PendingTargets  int             `json:"pending_targets"`
	PendingAnalysis int             `json:"pending_analysis"`
	Quota           *db.QuotaLedger `json:"quota"`
	ActiveRun       *db.CurationRun `json:"active_run,omitempty"`
	LastRun         *db.CurationRun `json:"last_run,omitempty"`
}

// Status assembles the operator snapshot from store and tracker state.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	eff := o.resolveSettings(settings)

	libSize, err := o.store.CountVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count library: %w", err)
	}
	pendingTargets, err := o.store.CountSelectableSources(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("failed to count selectable sources: %w", err)
	}
	pendingAnalysis, err := o.store.CountPendingAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending analysis: %w", err)
	}
	ledger, err := o.tracker.Usage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota usage: %w", err)
	}

	st := &Status{
		Enabled:         o.toggle.Enabled(),
		LibrarySize:     libSize,
		TargetSize:      eff.targetSize,
		PendingTargets:  pendingTargets,
		PendingAnalysis: pendingAnalysis,
		Quota:           ledger,
	}

	active, err := o.store.GetActiveRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active run: %w", err)
	}
	st.ActiveRun = active

	recent, err := o.store.ListRecentRuns(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent runs: %w", err)
	}
	if len(recent) > 0 {
		st.LastRun = &recent[0]
	}
	return st, nil
}
