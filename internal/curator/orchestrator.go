// Package curator orchestrates curation runs: guard checks, target
// iteration, funnel screening, and finalization.
package curator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/funnel"
	"github.com/jonathan/video-curator/internal/guardrail"
	"github.com/jonathan/video-curator/internal/platform"
	"github.com/jonathan/video-curator/internal/quota"
	"github.com/jonathan/video-curator/internal/rotation"
)

// Store aggregates the persistence surface the orchestrator needs.
type Store interface {
	CreateRun(ctx context.Context, kind, triggeredBy string) (*db.CurationRun, error)
	GetActiveRun(ctx context.Context) (*db.CurationRun, error)
	FinalizeRun(ctx context.Context, run *db.CurationRun) error
	ListStuckRuns(ctx context.Context, cutoff time.Time) ([]db.CurationRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]db.CurationRun, error)
	CountVideos(ctx context.Context) (int, error)
	CountSelectableSources(ctx context.Context, now time.Time) (int, error)
	CountPendingAnalysis(ctx context.Context) (int, error)
	GetSettings(ctx context.Context) (*db.Settings, error)
	RecordRotation(ctx context.Context, runID uuid.UUID, channelID string, screened, admitted int) error
}

// PlatformClient is the discovery surface of the external video platform.
type PlatformClient interface {
	SearchChannel(ctx context.Context, channelID, query string, max int64) ([]platform.SearchHit, error)
	SearchTopic(ctx context.Context, query string, max int64) ([]platform.SearchHit, error)
	VideoDetails(ctx context.Context, ids []string) ([]platform.Candidate, error)
}

// QuotaTracker is the budget bookkeeping the orchestrator consults.
type QuotaTracker interface {
	Reserve(ctx context.Context, op quota.Op) (bool, error)
	IsExhausted(ctx context.Context) (bool, error)
	MarkExhausted(ctx context.Context) error
	SelfHeal(ctx context.Context) error
	SetBudget(ctx context.Context, budget int) error
	Usage(ctx context.Context) (*db.QuotaLedger, error)
}

// CandidateFunnel screens candidates and persists admissions.
type CandidateFunnel interface {
	Evaluate(ctx context.Context, cand platform.Candidate, verified bool) (funnel.Verdict, error)
	Admit(ctx context.Context, cand platform.Candidate, score float64) error
}

// TargetPolicy selects and maintains rotation targets.
type TargetPolicy interface {
	SelectTargets(ctx context.Context, limit int) ([]rotation.Target, error)
	FallbackTargets(limit int) []rotation.Target
	RecordEmptyCycle(ctx context.Context, channelID string) error
	RecordAdmission(ctx context.Context, channelID string) error
}

// Config holds the orchestrator's fixed run parameters. Operator settings
// may override the per-run ceilings at guard time.
type Config struct {
	MaxSearchesPerRun   int
	MaxResultsPerSearch int64
	TargetLibrarySize   int
	InterQueryDelay     time.Duration
	StuckRunTimeout     time.Duration
	// EmptyTargetBreaker is how many consecutive zero-admission channel
	// targets trip the switch to topic fallback queries.
	EmptyTargetBreaker int
}

// DefaultConfig returns the production run parameters.
func DefaultConfig() Config {
	return Config{
		MaxSearchesPerRun:   10,
		MaxResultsPerSearch: 25,
		TargetLibrarySize:   1000,
		InterQueryDelay:     2 * time.Second,
		StuckRunTimeout:     30 * time.Minute,
		EmptyTargetBreaker:  3,
	}
}

// StartRejection is the structured negative result of the run-start guards.
// It is a normal outcome, not an error.
type StartRejection struct {
	Reason string `json:"reason"`
}

// Guard rejection reasons.
const (
	RejectDisabled    = "curation disabled"
	RejectLibraryFull = "target library size reached"
	RejectQuota       = "quota exhausted"
	RejectRunInFlight = "curation run already in progress"
)

// Orchestrator drives the run state machine.
type Orchestrator struct {
	store    Store
	platform PlatformClient
	tracker  QuotaTracker
	funnel   CandidateFunnel
	policy   TargetPolicy
	toggle   *Toggle
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

// New creates an orchestrator.
func New(store Store, pc PlatformClient, tracker QuotaTracker, f CandidateFunnel, policy TargetPolicy, toggle *Toggle, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		platform: pc,
		tracker:  tracker,
		funnel:   f,
		policy:   policy,
		toggle:   toggle,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// effective is a run's resolved parameters: defaults plus settings overrides,
// pinned at guard time so mid-run settings changes have no effect.
type effective struct {
	maxSearches int
	maxResults  int64
	targetSize  int
	// dailyBudget is the operator's quota override; zero means the
	// tracker keeps its configured budget.
	dailyBudget int
}

func (o *Orchestrator) resolveSettings(s *db.Settings) effective {
	eff := effective{
		maxSearches: o.cfg.MaxSearchesPerRun,
		maxResults:  o.cfg.MaxResultsPerSearch,
		targetSize:  o.cfg.TargetLibrarySize,
		dailyBudget: s.DailyBudgetOverride,
	}
	if s.MaxSearchesPerRun > 0 {
		eff.maxSearches = s.MaxSearchesPerRun
	}
	if s.MaxResultsPerSearch > 0 {
		eff.maxResults = int64(s.MaxResultsPerSearch)
	}
	if s.TargetLibrarySize > 0 {
		eff.targetSize = s.TargetLibrarySize
	}
	return eff
}

// checkGuards evaluates the run-start guards in order. A nil rejection means
// the run may start. Settings are read here, once; changes mid-run do not
// retroactively affect an in-flight run.
func (o *Orchestrator) checkGuards(ctx context.Context, eff effective, ignoreActive bool) (*StartRejection, error) {
	if !o.toggle.Enabled() {
		return &StartRejection{Reason: RejectDisabled}, nil
	}

	libSize, err := o.store.CountVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count library: %w", err)
	}
	if libSize >= eff.targetSize {
		return &StartRejection{Reason: RejectLibraryFull}, nil
	}

	// The operator's budget override lands before the self-heal so a
	// force-reset ledger, and every reservation after it, uses the
	// overridden budget.
	if eff.dailyBudget > 0 {
		if err := o.tracker.SetBudget(ctx, eff.dailyBudget); err != nil {
			return nil, fmt.Errorf("failed to apply budget override: %w", err)
		}
	}

	// Give a stale exhausted flag a chance to self-heal before it vetoes
	// the run.
	if err := o.tracker.SelfHeal(ctx); err != nil {
		log.Printf("[curator] quota self-heal failed: %v", err)
	}
	exhausted, err := o.tracker.IsExhausted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check quota: %w", err)
	}
	if exhausted {
		return &StartRejection{Reason: RejectQuota}, nil
	}

	if !ignoreActive {
		active, err := o.store.GetActiveRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check for active run: %w", err)
		}
		if active != nil {
			return &StartRejection{Reason: RejectRunInFlight}, nil
		}
	}
	return nil, nil
}

// Begin evaluates the guards and, when they clear, creates the Run record.
// A guard rejection is a cheap no-op: no record is written.
func (o *Orchestrator) Begin(ctx context.Context, kind, triggeredBy string) (*db.CurationRun, *StartRejection, error) {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read settings: %w", err)
	}
	eff := o.resolveSettings(settings)

	rejection, err := o.checkGuards(ctx, eff, false)
	if err != nil {
		return nil, nil, err
	}
	if rejection != nil {
		return nil, rejection, nil
	}

	run, err := o.store.CreateRun(ctx, kind, triggeredBy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}
	log.Printf("[curator] run %s started (kind=%s, by=%s)", run.ID, kind, triggeredBy)
	return run, nil, nil
}

// Run executes one complete curation cycle: guards, pipeline, finalization.
func (o *Orchestrator) Run(ctx context.Context, kind, triggeredBy string) (*db.CurationRun, *StartRejection, error) {
	run, rejection, err := o.Begin(ctx, kind, triggeredBy)
	if err != nil || rejection != nil {
		return nil, rejection, err
	}
	o.ExecuteRun(ctx, run)
	return run, nil, nil
}

// ExecuteRun resolves the current settings and drives an already-created run
// to completion. Suitable for launching in a background goroutine after Begin.
func (o *Orchestrator) ExecuteRun(ctx context.Context, run *db.CurationRun) {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		o.finalize(ctx, run, false, fmt.Errorf("failed to read settings: %w", err))
		return
	}
	o.execute(ctx, run, o.resolveSettings(settings))
}

// execute drives the pipeline for an already-created run and guarantees the
// run reaches a terminal state: every exit path, including a panic inside
// the pipeline, flows through the single finalization step below.
func (o *Orchestrator) execute(ctx context.Context, run *db.CurationRun, eff effective) {
	var (
		runErr   error
		quotaHit bool
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic during run: %v", r)
			}
		}()
		quotaHit, runErr = o.pipeline(ctx, run, eff)
	}()

	o.finalize(ctx, run, quotaHit, runErr)
}

// finalize writes the terminal run state and reports to the guardrail
// monitor. It is the only place a run leaves the running status.
func (o *Orchestrator) finalize(ctx context.Context, run *db.CurationRun, quotaHit bool, runErr error) {
	// The terminal write must outlive the pipeline context: a run whose
	// deadline fired mid-pipeline still leaves the running status instead
	// of waiting for the next stuck-run sweep.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	switch {
	case runErr != nil:
		run.Status = db.RunStatusFailed
		msg := runErr.Error()
		run.ErrorMessage = &msg
	case quotaHit:
		run.Status = db.RunStatusQuotaExhausted
	default:
		run.Status = db.RunStatusCompleted
	}

	band := guardrail.Classify(run.Admitted, run.Screened)
	run.GuardrailBand = string(band)

	alert := o.trendAlert(ctx, run, band)
	if alert != nil {
		run.TrendAlert = string(alert.Severity)
	}

	if err := o.store.FinalizeRun(ctx, run); err != nil {
		log.Printf("[curator] failed to finalize run %s: %v", run.ID, err)
	}
	log.Printf("[curator] run %s finished: status=%s screened=%d admitted=%d band=%s quota_units=%d",
		run.ID, run.Status, run.Screened, run.Admitted, band, run.QuotaUnits)

	if alert == nil {
		return
	}
	switch alert.Severity {
	case guardrail.SeverityCritical:
		log.Printf("[guardrail] CRITICAL: %s (recent bands: %v)", alert.Message, alert.Bands)
	default:
		log.Printf("[guardrail] warning: %s", alert.Message)
	}
}

// trendAlert classifies the run history ending at this run's band. The run
// itself is not finalized yet, so its band is prepended and its stored copy
// skipped; unfinished rows carry no band and no signal.
func (o *Orchestrator) trendAlert(ctx context.Context, run *db.CurationRun, latest guardrail.Band) *guardrail.Alert {
	if latest.Healthy() {
		return nil
	}
	recent, err := o.store.ListRecentRuns(ctx, 10)
	if err != nil {
		log.Printf("[curator] failed to load run history for trend check: %v", err)
		return nil
	}
	bands := []guardrail.Band{latest}
	for _, r := range recent {
		if r.ID == run.ID || r.GuardrailBand == "" {
			continue
		}
		bands = append(bands, guardrail.Band(r.GuardrailBand))
	}
	return guardrail.CheckTrend(bands)
}

// pipeline iterates the target slate under the per-run search budget.
// It returns quotaHit=true when either the internal budget or the platform
// itself reports exhaustion; partial counts stay on the run.
func (o *Orchestrator) pipeline(ctx context.Context, run *db.CurationRun, eff effective) (bool, error) {
	searchBudget := eff.maxSearches - run.QuotaUnits/quota.OpSearch.Cost()
	if searchBudget <= 0 {
		// A resumed run can arrive with its budget already spent.
		return false, nil
	}

	targets, err := o.policy.SelectTargets(ctx, searchBudget)
	if err != nil {
		return false, fmt.Errorf("failed to select targets: %w", err)
	}
	if len(targets) == 0 {
		// Zero eligible targets is a valid, zero-admission completion.
		log.Printf("[curator] run %s: no eligible targets", run.ID)
		return false, nil
	}

	counters := funnel.CountersFrom(run.SkipCounts)
	emptyStreak := 0
	switched := false

	queue := targets
	for len(queue) > 0 && searchBudget > 0 {
		target := queue[0]
		queue = queue[1:]

		screened, admitted, quotaHit, err := o.processTarget(ctx, run, target, eff, &counters)
		run.SkipCounts = counters.Snapshot()
		if quotaHit {
			return true, nil
		}
		if err != nil {
			// Transient: skip the target, keep the run going.
			log.Printf("[curator] run %s: target %q skipped: %v", run.ID, targetLabel(target), err)
			continue
		}
		searchBudget--

		if target.Kind == rotation.KindChannel {
			if err := o.store.RecordRotation(ctx, run.ID, target.ChannelID, screened, admitted); err != nil {
				log.Printf("[curator] failed to record rotation for %s: %v", target.ChannelID, err)
			}
			if admitted == 0 {
				if err := o.policy.RecordEmptyCycle(ctx, target.ChannelID); err != nil {
					log.Printf("[curator] %v", err)
				}
				emptyStreak++
			} else {
				if err := o.policy.RecordAdmission(ctx, target.ChannelID); err != nil {
					log.Printf("[curator] %v", err)
				}
				emptyStreak = 0
			}

			// Circuit breaker on wasted spend: after several dry channel
			// targets in a row, burn the rest of the budget on generic
			// topic queries instead.
			if !switched && emptyStreak >= o.cfg.EmptyTargetBreaker {
				log.Printf("[curator] run %s: %d consecutive empty targets; switching to topic fallback",
					run.ID, emptyStreak)
				queue = o.policy.FallbackTargets(searchBudget)
				switched = true
			}
		}

		if len(queue) > 0 && searchBudget > 0 {
			o.sleep(ctx, o.cfg.InterQueryDelay)
		}
	}

	return false, nil
}

func targetLabel(t rotation.Target) string {
	if t.Kind == rotation.KindChannel {
		return t.Title
	}
	return t.Query
}

// processTarget issues one discovery query plus one batched detail lookup
// for a target and funnels every result. quotaHit is set on either an
// internal reservation refusal or the platform's own quota signal.
func (o *Orchestrator) processTarget(ctx context.Context, run *db.CurationRun, target rotation.Target, eff effective, counters *funnel.Counters) (screened, admitted int, quotaHit bool, err error) {
	ok, err := o.tracker.Reserve(ctx, quota.OpSearch)
	if err != nil {
		return 0, 0, false, fmt.Errorf("quota reservation failed: %w", err)
	}
	if !ok {
		return 0, 0, true, nil
	}
	run.QuotaUnits += quota.OpSearch.Cost()

	var hits []platform.SearchHit
	if target.Kind == rotation.KindChannel {
		hits, err = o.platform.SearchChannel(ctx, target.ChannelID, target.Query, eff.maxResults)
	} else {
		hits, err = o.platform.SearchTopic(ctx, target.Query, eff.maxResults)
	}
	if err != nil {
		if platform.IsQuotaError(err) {
			if merr := o.tracker.MarkExhausted(ctx); merr != nil {
				log.Printf("[curator] failed to mark quota exhausted: %v", merr)
			}
			return 0, 0, true, nil
		}
		return 0, 0, false, err
	}
	if len(hits) == 0 {
		return 0, 0, false, nil
	}

	ok, err = o.tracker.Reserve(ctx, quota.OpDetails)
	if err != nil {
		return 0, 0, false, fmt.Errorf("quota reservation failed: %w", err)
	}
	if !ok {
		return 0, 0, true, nil
	}
	run.QuotaUnits += quota.OpDetails.Cost()

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.VideoID)
	}
	candidates, err := o.platform.VideoDetails(ctx, ids)
	if err != nil {
		if platform.IsQuotaError(err) {
			if merr := o.tracker.MarkExhausted(ctx); merr != nil {
				log.Printf("[curator] failed to mark quota exhausted: %v", merr)
			}
			return 0, 0, true, nil
		}
		return 0, 0, false, err
	}

	for _, cand := range candidates {
		verdict, err := o.funnel.Evaluate(ctx, cand, target.Verified)
		if err != nil {
			log.Printf("[curator] candidate %s skipped: %v", cand.VideoID, err)
			continue
		}
		run.Screened++
		screened++
		if verdict.Admitted {
			// A failed persist keeps the candidate in the screened count;
			// it passed the funnel either way.
			if err := o.funnel.Admit(ctx, cand, verdict.Score); err != nil {
				log.Printf("[curator] admission of %s failed: %v", cand.VideoID, err)
				continue
			}
			run.Admitted++
			admitted++
		} else {
			counters.Add(verdict.Reason)
		}
	}

	return screened, admitted, false, nil
}
