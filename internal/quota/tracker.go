// Package quota budgets external API operations against the platform's
// fixed daily allowance.
package quota

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/platform"
)

// Op is an external operation kind with a fixed unit cost.
type Op int

const (
	// OpSearch is a discovery query (expensive).
	OpSearch Op = iota
	// OpDetails is a detail lookup (cheap).
	OpDetails
	// OpProbe is the minimal staleness-verification call.
	OpProbe
)

// Cost returns the platform's unit cost for the operation.
func (o Op) Cost() int {
	switch o {
	case OpSearch:
		return 100
	default:
		return 1
	}
}

func (o Op) String() string {
	switch o {
	case OpSearch:
		return "search"
	case OpDetails:
		return "details"
	case OpProbe:
		return "probe"
	default:
		return "unknown"
	}
}

const (
	// DefaultDailyBudget is the platform's standard daily allowance.
	DefaultDailyBudget = 10000

	// safetyMargin keeps the last ~5% of the budget unreserved so a final
	// reservation never hits the hard limit before the orchestrator can react.
	safetyMargin = 0.05

	// staleThreshold is how far past the expected reset boundary the
	// exhausted flag must persist before the tracker suspects its own
	// bookkeeping and probes the platform.
	staleThreshold = time.Hour
)

// Store is the ledger persistence the tracker needs.
type Store interface {
	GetOrCreateQuotaLedger(ctx context.Context, date string, budget int) (*db.QuotaLedger, error)
	AddQuotaUsage(ctx context.Context, date string, searches, details, units int) error
	SetQuotaBudget(ctx context.Context, date string, budget int) error
	MarkQuotaExhausted(ctx context.Context, date string) error
	ResetQuotaLedger(ctx context.Context, date string, budget int) (*db.QuotaLedger, error)
}

// Prober issues the minimal real platform call used for staleness checks.
type Prober interface {
	Probe(ctx context.Context) error
}

// Tracker tracks daily quota consumption with a safety margin and detects
// stale exhaustion state across the platform's reset boundary.
type Tracker struct {
	store  Store
	prober Prober
	budget int
	loc    *time.Location
	now    func() time.Time

	mu     sync.Mutex
	cached *db.QuotaLedger
}

// NewTracker creates a tracker with the given daily budget. A budget of
// zero selects the platform default. The prober may be nil; staleness
// self-healing is then disabled.
func NewTracker(store Store, budget int, prober Prober) *Tracker {
	if budget <= 0 {
		budget = DefaultDailyBudget
	}
	return &Tracker{
		store:  store,
		prober: prober,
		budget: budget,
		loc:    resetLocation(),
		now:    time.Now,
	}
}

// resetLocation is the platform's quota reset timezone (Pacific time).
func resetLocation() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		// Fallback for environments without tzdata; DST drift is tolerable
		// because the staleness probe covers a missed boundary.
		return time.FixedZone("PT", -8*3600)
	}
	return loc
}

// ResetDate returns the ledger key for the reset-boundary day containing t.
func (t *Tracker) ResetDate(at time.Time) string {
	return at.In(t.loc).Format("2006-01-02")
}

// ledger returns the ledger for the current reset day, creating a fresh row
// when the day has rolled over. The cached copy avoids a DB round-trip per
// bookkeeping call within one run.
func (t *Tracker) ledger(ctx context.Context) (*db.QuotaLedger, error) {
	date := t.ResetDate(t.now())
	if t.cached != nil && t.cached.UsageDate == date {
		return t.cached, nil
	}
	l, err := t.store.GetOrCreateQuotaLedger(ctx, date, t.budget)
	if err != nil {
		return nil, err
	}
	t.cached = l
	return l, nil
}

// threshold is the reservable portion of the budget.
func threshold(budget int) int {
	return budget - int(float64(budget)*safetyMargin)
}

// Reserve checks whether the operation fits in today's remaining budget and,
// if so, commits its cost. A refused reservation marks the ledger exhausted
// so subsequent callers short-circuit.
func (t *Tracker) Reserve(ctx context.Context, op Op) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if l.Exhausted {
		return false, nil
	}

	cost := op.Cost()
	if l.UnitsConsumed+cost > threshold(l.DailyBudget) {
		l.Exhausted = true
		if err := t.store.MarkQuotaExhausted(ctx, l.UsageDate); err != nil {
			return false, fmt.Errorf("failed to mark quota exhausted: %w", err)
		}
		return false, nil
	}

	searches, details := 0, 0
	switch op {
	case OpSearch:
		searches = 1
	default:
		details = 1
	}
	if err := t.store.AddQuotaUsage(ctx, l.UsageDate, searches, details, cost); err != nil {
		return false, fmt.Errorf("failed to record quota usage: %w", err)
	}
	l.SearchCount += searches
	l.DetailCount += details
	l.UnitsConsumed += cost
	return true, nil
}

// SetBudget applies an operator budget override. It takes effect on today's
// ledger immediately and on every ledger created afterwards; units already
// consumed are untouched. A non-positive budget is ignored.
func (t *Tracker) SetBudget(ctx context.Context, budget int) error {
	if budget <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.budget = budget
	l, err := t.ledger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if l.DailyBudget == budget {
		return nil
	}
	if err := t.store.SetQuotaBudget(ctx, l.UsageDate, budget); err != nil {
		return fmt.Errorf("failed to apply budget override: %w", err)
	}
	l.DailyBudget = budget
	return nil
}

// RecordUsage adds units consumed outside the Reserve path, e.g. when the
// platform reports a different actual cost.
func (t *Tracker) RecordUsage(ctx context.Context, units int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if err := t.store.AddQuotaUsage(ctx, l.UsageDate, 0, 0, units); err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}
	l.UnitsConsumed += units
	return nil
}

// Remaining returns the reservable units left today.
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if l.Exhausted {
		return 0, nil
	}
	rem := threshold(l.DailyBudget) - l.UnitsConsumed
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// IsExhausted reports whether today's budget is spent.
func (t *Tracker) IsExhausted(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	return l.Exhausted, nil
}

// MarkExhausted records that the platform itself reported quota exhaustion.
func (t *Tracker) MarkExhausted(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if l.Exhausted {
		return nil
	}
	if err := t.store.MarkQuotaExhausted(ctx, l.UsageDate); err != nil {
		return fmt.Errorf("failed to mark quota exhausted: %w", err)
	}
	l.Exhausted = true
	return nil
}

// Usage returns a snapshot of today's ledger for status reporting.
func (t *Tracker) Usage(ctx context.Context) (*db.QuotaLedger, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota ledger: %w", err)
	}
	snapshot := *l
	return &snapshot, nil
}

// SelfHeal detects stale exhaustion state. If the ledger says exhausted but
// the reset boundary should have passed, it issues one minimal probe:
//   - probe succeeds: the platform has budget again; force-reset the ledger
//     and charge the probe's unit against the fresh budget.
//   - probe reports quota exhaustion: the flag is correct; trust it.
//   - probe fails otherwise: inconclusive; no state change, retried next cycle.
func (t *Tracker) SelfHeal(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, err := t.ledger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load quota ledger: %w", err)
	}
	if !l.Exhausted || t.prober == nil {
		return nil
	}
	if t.now().Sub(l.LastResetAt) < 24*time.Hour+staleThreshold {
		return nil
	}

	log.Printf("[quota] exhausted flag is stale (last reset %s); probing platform", l.LastResetAt.Format(time.RFC3339))

	err = t.prober.Probe(ctx)
	switch {
	case err == nil:
		fresh, err := t.store.ResetQuotaLedger(ctx, t.ResetDate(t.now()), t.budget)
		if err != nil {
			return fmt.Errorf("failed to reset stale quota ledger: %w", err)
		}
		if err := t.store.AddQuotaUsage(ctx, fresh.UsageDate, 0, 1, OpProbe.Cost()); err != nil {
			return fmt.Errorf("failed to record probe usage: %w", err)
		}
		fresh.DetailCount++
		fresh.UnitsConsumed += OpProbe.Cost()
		t.cached = fresh
		log.Printf("[quota] probe succeeded; ledger force-reset for %s", fresh.UsageDate)
		return nil
	case platform.IsQuotaError(err):
		log.Printf("[quota] probe confirmed exhaustion; keeping state")
		return nil
	default:
		log.Printf("[quota] probe inconclusive (%v); retrying next cycle", err)
		return nil
	}
}
