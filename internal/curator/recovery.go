package curator

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/video-curator/internal/db"
)

// RecoverStuckRuns sweeps runs left in the running state past the stuck-run
// timeout, typically orphaned by a process restart. Each run is resumed
// under its remaining search budget when the guards still allow it, and
// failed otherwise. Returns how many runs were resumed and how many failed.
func (o *Orchestrator) RecoverStuckRuns(ctx context.Context) (resumed, failed int, err error) {
	cutoff := o.now().Add(-o.cfg.StuckRunTimeout)
	stuck, err := o.store.ListStuckRuns(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list stuck runs: %w", err)
	}
	if len(stuck) == 0 {
		return 0, 0, nil
	}

	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read settings: %w", err)
	}
	eff := o.resolveSettings(settings)

	for i := range stuck {
		run := &stuck[i]
		log.Printf("[curator] found stuck run %s (started %s, %d units spent)",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.QuotaUnits)

		// The stuck run itself holds the active slot, so the single-flight
		// guard is skipped here.
		rejection, err := o.checkGuards(ctx, eff, true)
		if err != nil {
			return resumed, failed, err
		}
		if rejection != nil {
			reason := fmt.Sprintf("orphaned by process restart; not resumable: %s", rejection.Reason)
			run.Status = db.RunStatusFailed
			run.ErrorMessage = &reason
			if ferr := o.store.FinalizeRun(ctx, run); ferr != nil {
				log.Printf("[curator] failed to finalize stuck run %s: %v", run.ID, ferr)
				continue
			}
			failed++
			continue
		}

		log.Printf("[curator] resuming run %s with remaining budget", run.ID)
		o.execute(ctx, run, eff)
		resumed++
	}
	return resumed, failed, nil
}
