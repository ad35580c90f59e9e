package curator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/funnel"
	"github.com/jonathan/video-curator/internal/guardrail"
	"github.com/jonathan/video-curator/internal/platform"
	"github.com/jonathan/video-curator/internal/quota"
	"github.com/jonathan/video-curator/internal/rotation"
)

type fakeStore struct {
	runs            map[uuid.UUID]*db.CurationRun
	order           []uuid.UUID
	settings        db.Settings
	libraryCount    int
	selectableCount int
	pendingAnalysis int
	rotations       int
	setEnabledErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     make(map[uuid.UUID]*db.CurationRun),
		settings: db.Settings{Enabled: true},
	}
}

func (s *fakeStore) CreateRun(ctx context.Context, kind, triggeredBy string) (*db.CurationRun, error) {
	run := &db.CurationRun{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      db.RunStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now(),
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	return run, nil
}

func (s *fakeStore) GetActiveRun(ctx context.Context) (*db.CurationRun, error) {
	for _, id := range s.order {
		if s.runs[id].Status == db.RunStatusRunning {
			return s.runs[id], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FinalizeRun(ctx context.Context, run *db.CurationRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	run.CompletedAt = &now
	stored, ok := s.runs[run.ID]
	if !ok {
		s.runs[run.ID] = run
		s.order = append(s.order, run.ID)
		return nil
	}
	*stored = *run
	return nil
}

func (s *fakeStore) ListStuckRuns(ctx context.Context, cutoff time.Time) ([]db.CurationRun, error) {
	var out []db.CurationRun
	for _, id := range s.order {
		r := s.runs[id]
		if r.Status == db.RunStatusRunning && r.StartedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListRecentRuns(ctx context.Context, limit int) ([]db.CurationRun, error) {
	var out []db.CurationRun
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	return out, nil
}

func (s *fakeStore) CountVideos(ctx context.Context) (int, error) { return s.libraryCount, nil }

func (s *fakeStore) CountSelectableSources(ctx context.Context, now time.Time) (int, error) {
	return s.selectableCount, nil
}

func (s *fakeStore) CountPendingAnalysis(ctx context.Context) (int, error) {
	return s.pendingAnalysis, nil
}

func (s *fakeStore) GetSettings(ctx context.Context) (*db.Settings, error) {
	cp := s.settings
	return &cp, nil
}

func (s *fakeStore) SetEnabled(ctx context.Context, enabled bool) error {
	if s.setEnabledErr != nil {
		return s.setEnabledErr
	}
	s.settings.Enabled = enabled
	return nil
}

func (s *fakeStore) RecordRotation(ctx context.Context, runID uuid.UUID, channelID string, screened, admitted int) error {
	s.rotations++
	return nil
}

type fakePlatform struct {
	hits       map[string][]platform.SearchHit
	topicHits  []platform.SearchHit
	candidates map[string]platform.Candidate
	searchErr  error
	detailsErr error
	searches   int
}

func (p *fakePlatform) SearchChannel(ctx context.Context, channelID, query string, max int64) ([]platform.SearchHit, error) {
	p.searches++
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.hits[channelID], nil
}

func (p *fakePlatform) SearchTopic(ctx context.Context, query string, max int64) ([]platform.SearchHit, error) {
	p.searches++
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.topicHits, nil
}

func (p *fakePlatform) VideoDetails(ctx context.Context, ids []string) ([]platform.Candidate, error) {
	if p.detailsErr != nil {
		return nil, p.detailsErr
	}
	var out []platform.Candidate
	for _, id := range ids {
		if c, ok := p.candidates[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func quotaAPIError() error {
	return &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded", Message: "Quota exceeded"}},
	}
}

type fakeTracker struct {
	exhausted   bool
	reserved    int
	refuseAfter int // refuse reservations once this many have been granted (0 = never)
	selfHealed  int
	markedCount int
	budget      int
}

func (t *fakeTracker) Reserve(ctx context.Context, op quota.Op) (bool, error) {
	if t.exhausted {
		return false, nil
	}
	if t.refuseAfter > 0 && t.reserved >= t.refuseAfter {
		t.exhausted = true
		return false, nil
	}
	t.reserved++
	return true, nil
}

func (t *fakeTracker) IsExhausted(ctx context.Context) (bool, error) { return t.exhausted, nil }

func (t *fakeTracker) MarkExhausted(ctx context.Context) error {
	t.exhausted = true
	t.markedCount++
	return nil
}

func (t *fakeTracker) SelfHeal(ctx context.Context) error {
	t.selfHealed++
	return nil
}

func (t *fakeTracker) SetBudget(ctx context.Context, budget int) error {
	t.budget = budget
	return nil
}

func (t *fakeTracker) Usage(ctx context.Context) (*db.QuotaLedger, error) {
	return &db.QuotaLedger{UsageDate: "2026-08-31", DailyBudget: 10000, Exhausted: t.exhausted}, nil
}

type fakeFunnel struct {
	admitAll bool
	admitErr error
	panics   bool
	admitted []string
}

func (f *fakeFunnel) Evaluate(ctx context.Context, cand platform.Candidate, verified bool) (funnel.Verdict, error) {
	if f.panics {
		panic("funnel exploded")
	}
	if f.admitAll {
		return funnel.Verdict{Admitted: true, Score: 0.8}, nil
	}
	return funnel.Verdict{Admitted: false, Reason: funnel.ReasonLowQuality}, nil
}

func (f *fakeFunnel) Admit(ctx context.Context, cand platform.Candidate, score float64) error {
	if f.admitErr != nil {
		return f.admitErr
	}
	f.admitted = append(f.admitted, cand.VideoID)
	return nil
}

type fakePolicy struct {
	targets     []rotation.Target
	emptyCycles []string
	admissions  []string
	fallbacks   int
}

func (p *fakePolicy) SelectTargets(ctx context.Context, limit int) ([]rotation.Target, error) {
	if limit < len(p.targets) {
		return p.targets[:limit], nil
	}
	return p.targets, nil
}

func (p *fakePolicy) FallbackTargets(limit int) []rotation.Target {
	p.fallbacks++
	var out []rotation.Target
	for i := 0; i < limit; i++ {
		out = append(out, rotation.Target{Kind: rotation.KindTopic, Query: fmt.Sprintf("topic %d", i)})
	}
	return out
}

func (p *fakePolicy) RecordEmptyCycle(ctx context.Context, channelID string) error {
	p.emptyCycles = append(p.emptyCycles, channelID)
	return nil
}

func (p *fakePolicy) RecordAdmission(ctx context.Context, channelID string) error {
	p.admissions = append(p.admissions, channelID)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InterQueryDelay = 0
	return cfg
}

func channelTarget(id string) rotation.Target {
	return rotation.Target{Kind: rotation.KindChannel, ChannelID: id, Title: "Channel " + id, Query: "lesson"}
}

func hitFor(id, channel string) platform.SearchHit {
	return platform.SearchHit{VideoID: id, Title: "Video " + id, ChannelID: channel}
}

func candidateFor(id, channel string) platform.Candidate {
	return platform.Candidate{
		VideoID:         id,
		Title:           "Video " + id,
		ChannelID:       channel,
		DurationSeconds: 900,
		ViewCount:       150000,
		LikeCount:       7500,
	}
}

func newTestOrchestrator(store *fakeStore, pc *fakePlatform, tracker *fakeTracker, f *fakeFunnel, policy *fakePolicy) *Orchestrator {
	toggle := NewToggle(store.settings.Enabled, store)
	return New(store, pc, tracker, f, policy, toggle, testConfig())
}

func TestRun_CompletesWithAdmissions(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits: map[string][]platform.SearchHit{
			"ch1": {hitFor("v1", "ch1"), hitFor("v2", "ch1")},
		},
		candidates: map[string]platform.Candidate{
			"v1": candidateFor("v1", "ch1"),
			"v2": candidateFor("v2", "ch1"),
		},
	}
	tracker := &fakeTracker{}
	f := &fakeFunnel{admitAll: true}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}

	o := newTestOrchestrator(store, pc, tracker, f, policy)
	run, rejection, err := o.Run(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.Nil(t, rejection)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Screened)
	assert.Equal(t, 2, run.Admitted)
	assert.Equal(t, quota.OpSearch.Cost()+quota.OpDetails.Cost(), run.QuotaUnits)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, []string{"ch1"}, policy.admissions)
	assert.Equal(t, 1, store.rotations)
}

func TestBegin_RejectsWhenDisabled(t *testing.T) {
	store := newFakeStore()
	store.settings.Enabled = false
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, rejection, err := o.Begin(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, RejectDisabled, rejection.Reason)
	assert.Nil(t, run)
	assert.Empty(t, store.runs, "a rejected start must not write a run record")
}

func TestBegin_RejectsWhenLibraryFull(t *testing.T) {
	store := newFakeStore()
	store.libraryCount = DefaultConfig().TargetLibrarySize
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	_, rejection, err := o.Begin(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, RejectLibraryFull, rejection.Reason)
}

func TestBegin_RejectsWhenQuotaExhausted(t *testing.T) {
	store := newFakeStore()
	tracker := &fakeTracker{exhausted: true}
	o := newTestOrchestrator(store, &fakePlatform{}, tracker, &fakeFunnel{}, &fakePolicy{})

	_, rejection, err := o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, RejectQuota, rejection.Reason)
	assert.Equal(t, 1, tracker.selfHealed, "the guard must give staleness a chance to heal first")
}

func TestBegin_AppliesDailyBudgetOverride(t *testing.T) {
	store := newFakeStore()
	store.settings.DailyBudgetOverride = 5000
	tracker := &fakeTracker{}
	o := newTestOrchestrator(store, &fakePlatform{}, tracker, &fakeFunnel{}, &fakePolicy{})

	_, rejection, err := o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.Nil(t, rejection)
	assert.Equal(t, 5000, tracker.budget,
		"the settings override must reach the tracker before the exhaustion check")
}

func TestBegin_NoOverrideLeavesBudgetAlone(t *testing.T) {
	store := newFakeStore()
	tracker := &fakeTracker{}
	o := newTestOrchestrator(store, &fakePlatform{}, tracker, &fakeFunnel{}, &fakePolicy{})

	_, _, err := o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	assert.Zero(t, tracker.budget, "a zero override must not touch the tracker")
}

func TestBegin_RejectsSecondConcurrentRun(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, rejection, err := o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.Nil(t, rejection)
	require.NotNil(t, run)

	_, rejection, err = o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.NotNil(t, rejection)
	assert.Equal(t, RejectRunInFlight, rejection.Reason)
}

func TestExecute_QuotaExhaustedMidRun(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits: map[string][]platform.SearchHit{
			"ch1": {hitFor("v1", "ch1")},
			"ch2": {hitFor("v2", "ch2")},
		},
		candidates: map[string]platform.Candidate{
			"v1": candidateFor("v1", "ch1"),
			"v2": candidateFor("v2", "ch2"),
		},
	}
	// First target gets its search+details; the third reservation is refused.
	tracker := &fakeTracker{refuseAfter: 2}
	f := &fakeFunnel{admitAll: true}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1"), channelTarget("ch2")}}

	o := newTestOrchestrator(store, pc, tracker, f, policy)
	run, rejection, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	require.Nil(t, rejection)

	assert.Equal(t, db.RunStatusQuotaExhausted, run.Status)
	assert.Equal(t, 1, run.Screened, "partial counts survive the quota stop")
	assert.Equal(t, 1, run.Admitted)
	assert.NotNil(t, run.CompletedAt)
}

func TestExecute_PlatformQuotaErrorMarksTracker(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{searchErr: quotaAPIError()}
	tracker := &fakeTracker{}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}

	o := newTestOrchestrator(store, pc, tracker, &fakeFunnel{}, policy)
	run, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusQuotaExhausted, run.Status)
	assert.Equal(t, 1, tracker.markedCount, "platform quota signal must be persisted")
}

func TestExecute_PanicBecomesFailedRun(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits:       map[string][]platform.SearchHit{"ch1": {hitFor("v1", "ch1")}},
		candidates: map[string]platform.Candidate{"v1": candidateFor("v1", "ch1")},
	}
	f := &fakeFunnel{panics: true}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}

	o := newTestOrchestrator(store, pc, &fakeTracker{}, f, policy)
	run, _, err := o.Run(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "panic during run")
	assert.NotNil(t, run.CompletedAt, "a panicking run must still reach a terminal state")
}

func TestExecute_ZeroTargetsCompletes(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, rejection, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	require.Nil(t, rejection)
	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.Screened)
}

func TestExecute_TransientSearchErrorSkipsTarget(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{searchErr: errors.New("connection reset")}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1"), channelTarget("ch2")}}

	o := newTestOrchestrator(store, pc, &fakeTracker{}, &fakeFunnel{}, policy)
	run, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, pc.searches, "each target is still attempted once")
}

func TestExecute_EmptyStreakSwitchesToFallback(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits: map[string][]platform.SearchHit{
			"ch1": {hitFor("v1", "ch1")},
			"ch2": {hitFor("v2", "ch2")},
			"ch3": {hitFor("v3", "ch3")},
		},
		candidates: map[string]platform.Candidate{
			"v1": candidateFor("v1", "ch1"),
			"v2": candidateFor("v2", "ch2"),
			"v3": candidateFor("v3", "ch3"),
		},
	}
	f := &fakeFunnel{} // everything rejected, so every channel cycle is empty
	policy := &fakePolicy{targets: []rotation.Target{
		channelTarget("ch1"), channelTarget("ch2"), channelTarget("ch3"), channelTarget("ch4"),
	}}

	o := newTestOrchestrator(store, pc, &fakeTracker{}, f, policy)
	run, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Len(t, policy.emptyCycles, 3, "the breaker trips after three consecutive empty targets")
	assert.Equal(t, 1, policy.fallbacks, "remaining budget flows to topic fallback")
}

func TestExecute_AdmitFailureKeepsScreenedCount(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits: map[string][]platform.SearchHit{
			"ch1": {hitFor("v1", "ch1"), hitFor("v2", "ch1")},
		},
		candidates: map[string]platform.Candidate{
			"v1": candidateFor("v1", "ch1"),
			"v2": candidateFor("v2", "ch1"),
		},
	}
	f := &fakeFunnel{admitAll: true, admitErr: errors.New("insert failed")}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}

	o := newTestOrchestrator(store, pc, &fakeTracker{}, f, policy)
	run, _, err := o.Run(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Screened,
		"a candidate that passed the funnel stays screened even when the persist fails")
	assert.Equal(t, 0, run.Admitted)
}

func TestExecute_CanceledContextStillFinalizes(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, rejection, err := o.Begin(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	require.Nil(t, rejection)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.ExecuteRun(ctx, run)

	final := store.runs[run.ID]
	assert.NotEqual(t, db.RunStatusRunning, final.Status,
		"the terminal write must survive pipeline cancellation")
	assert.NotNil(t, final.CompletedAt)
}

func TestExecute_TrendEscalationPersistedOnRun(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 2; i++ {
		prior, err := store.CreateRun(context.Background(), db.RunKindScheduled, "scheduler")
		require.NoError(t, err)
		prior.Status = db.RunStatusCompleted
		prior.GuardrailBand = string(guardrail.BandCriticalLow)
	}

	pc := &fakePlatform{
		hits:       map[string][]platform.SearchHit{"ch1": {hitFor("v1", "ch1")}},
		candidates: map[string]platform.Candidate{"v1": candidateFor("v1", "ch1")},
	}
	f := &fakeFunnel{} // everything rejected, so the rate lands in critical_low
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}
	o := newTestOrchestrator(store, pc, &fakeTracker{}, f, policy)

	run, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, string(guardrail.BandCriticalLow), run.GuardrailBand)
	assert.Equal(t, string(guardrail.SeverityCritical), run.TrendAlert,
		"the third consecutive out-of-band run carries the escalation")
	assert.Equal(t, run.TrendAlert, store.runs[run.ID].TrendAlert)

	// A fourth bad run continues the streak without re-escalating.
	run2, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	assert.Empty(t, run2.TrendAlert)
}

func TestExecute_SingleOutOfBandRunWarns(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits:       map[string][]platform.SearchHit{"ch1": {hitFor("v1", "ch1")}},
		candidates: map[string]platform.Candidate{"v1": candidateFor("v1", "ch1")},
	}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}
	o := newTestOrchestrator(store, pc, &fakeTracker{}, &fakeFunnel{}, policy)

	run, _, err := o.Run(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, string(guardrail.SeverityWarning), run.TrendAlert)
}

func TestRecoverStuckRuns_ResumesWithRemainingBudget(t *testing.T) {
	store := newFakeStore()
	pc := &fakePlatform{
		hits:       map[string][]platform.SearchHit{"ch1": {hitFor("v1", "ch1")}},
		candidates: map[string]platform.Candidate{"v1": candidateFor("v1", "ch1")},
	}
	f := &fakeFunnel{admitAll: true}
	policy := &fakePolicy{targets: []rotation.Target{channelTarget("ch1")}}
	o := newTestOrchestrator(store, pc, &fakeTracker{}, f, policy)

	run, err := store.CreateRun(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	run.StartedAt = time.Now().Add(-2 * time.Hour)
	run.QuotaUnits = 3 * quota.OpSearch.Cost()
	run.Screened = 5
	run.Admitted = 1

	resumed, failed, err := o.RecoverStuckRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, 0, failed)

	final := store.runs[run.ID]
	assert.Equal(t, db.RunStatusCompleted, final.Status)
	assert.Equal(t, 6, final.Screened, "prior partial counts keep accumulating")
	assert.Equal(t, 2, final.Admitted)
}

func TestRecoverStuckRuns_FailsUnresumableRun(t *testing.T) {
	store := newFakeStore()
	tracker := &fakeTracker{exhausted: true}
	o := newTestOrchestrator(store, &fakePlatform{}, tracker, &fakeFunnel{}, &fakePolicy{})

	run, err := store.CreateRun(context.Background(), db.RunKindScheduled, "scheduler")
	require.NoError(t, err)
	run.StartedAt = time.Now().Add(-2 * time.Hour)

	resumed, failed, err := o.RecoverStuckRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
	assert.Equal(t, 1, failed)

	final := store.runs[run.ID]
	assert.Equal(t, db.RunStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "orphaned by process restart")
}

func TestRecoverStuckRuns_IgnoresFreshRuns(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, err := store.CreateRun(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	run.StartedAt = time.Now().Add(-5 * time.Minute)

	resumed, failed, err := o.RecoverStuckRuns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resumed)
	assert.Zero(t, failed)
	assert.Equal(t, db.RunStatusRunning, store.runs[run.ID].Status)
}

func TestToggle_SetPersistsBeforeUpdating(t *testing.T) {
	store := newFakeStore()
	toggle := NewToggle(true, store)

	require.NoError(t, toggle.Set(context.Background(), false))
	assert.False(t, toggle.Enabled())
	assert.False(t, store.settings.Enabled)

	store.setEnabledErr = errors.New("db down")
	err := toggle.Set(context.Background(), true)
	require.Error(t, err)
	assert.False(t, toggle.Enabled(), "a failed persist must not flip the in-memory flag")
}

func TestStatus_AssemblesSnapshot(t *testing.T) {
	store := newFakeStore()
	store.libraryCount = 42
	store.selectableCount = 7
	store.pendingAnalysis = 3
	o := newTestOrchestrator(store, &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	run, err := store.CreateRun(context.Background(), db.RunKindManual, "operator")
	require.NoError(t, err)
	run.Status = db.RunStatusCompleted

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, 42, st.LibrarySize)
	assert.Equal(t, DefaultConfig().TargetLibrarySize, st.TargetSize)
	assert.Equal(t, 7, st.PendingTargets)
	assert.Equal(t, 3, st.PendingAnalysis)
	require.NotNil(t, st.Quota)
	assert.Nil(t, st.ActiveRun)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, run.ID, st.LastRun.ID)
}

func TestResolveSettings_Overrides(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakePlatform{}, &fakeTracker{}, &fakeFunnel{}, &fakePolicy{})

	eff := o.resolveSettings(&db.Settings{})
	assert.Equal(t, DefaultConfig().MaxSearchesPerRun, eff.maxSearches)

	eff = o.resolveSettings(&db.Settings{
		DailyBudgetOverride: 5000, MaxSearchesPerRun: 4, MaxResultsPerSearch: 10, TargetLibrarySize: 50,
	})
	assert.Equal(t, 5000, eff.dailyBudget)
	assert.Equal(t, 4, eff.maxSearches)
	assert.Equal(t, int64(10), eff.maxResults)
	assert.Equal(t, 50, eff.targetSize)
}
