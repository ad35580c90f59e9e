package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-curator/internal/db"
)

// fakeStore serves a fixed source list and records cooldown writes.
type fakeStore struct {
	sources   []db.SourceState
	cooldowns map[string]time.Time
	cleared   []string
}

func newFakeStore(sources ...db.SourceState) *fakeStore {
	return &fakeStore{sources: sources, cooldowns: make(map[string]time.Time)}
}

func (f *fakeStore) ListSelectableSources(_ context.Context, now time.Time) ([]db.SourceState, error) {
	var out []db.SourceState
	for _, s := range f.sources {
		if until, ok := f.cooldowns[s.ChannelID]; ok && until.After(now) {
			continue
		}
		if s.OnCooldown(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) SetSourceCooldown(_ context.Context, channelID string, until time.Time) error {
	f.cooldowns[channelID] = until
	for i := range f.sources {
		if f.sources[i].ChannelID == channelID {
			f.sources[i].ConsecutiveEmptyRuns++
		}
	}
	return nil
}

func (f *fakeStore) ClearSourceEmptyRuns(_ context.Context, channelID string) error {
	f.cleared = append(f.cleared, channelID)
	return nil
}

func source(id string, count int) db.SourceState {
	return db.SourceState{ChannelID: id, ChannelTitle: "Channel " + id, LibraryCount: count}
}

func TestSelectTargets_TierOrdering(t *testing.T) {
	store := newFakeStore(
		source("UC-starved-1", 0),
		source("UC-starved-2", 2),
		source("UC-mid-1", 8),
		source("UC-mid-2", 15),
		source("UC-full-1", 50),
		source("UC-full-2", 80),
	)
	p := New(store, []string{"tennis lesson"})

	targets, err := p.SelectTargets(context.Background(), 6)
	require.NoError(t, err)
	require.NotEmpty(t, targets)

	// Severely under-represented sources lead the slate.
	assert.Equal(t, "UC-starved-1", targets[0].ChannelID)
	assert.Equal(t, "UC-starved-2", targets[1].ChannelID)
}

func TestSelectTargets_SmallLimitPrefersStarved(t *testing.T) {
	store := newFakeStore(
		source("UC-starved", 0),
		source("UC-full", 50),
	)
	p := New(store, nil)

	targets, err := p.SelectTargets(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "UC-starved", targets[0].ChannelID,
		"a one-slot slate goes to the most under-represented source")
}

func TestSelectTargets_ExcludesCooldown(t *testing.T) {
	future := time.Now().Add(7 * 24 * time.Hour)
	cooled := source("UC-cooled", 0)
	cooled.CooldownUntil = &future

	store := newFakeStore(cooled, source("UC-available", 3))
	p := New(store, nil)

	targets, err := p.SelectTargets(context.Background(), 5)
	require.NoError(t, err)
	for _, target := range targets {
		assert.NotEqual(t, "UC-cooled", target.ChannelID,
			"cooled-down target must be excluded regardless of tier")
	}
}

func TestSelectTargets_TopicFallbackWhenSourcesDry(t *testing.T) {
	store := newFakeStore(source("UC-only", 1))
	p := New(store, []string{"forehand drills", "footwork basics"})

	targets, err := p.SelectTargets(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, KindChannel, targets[0].Kind)
	assert.Equal(t, KindTopic, targets[1].Kind)
	assert.Equal(t, "forehand drills", targets[1].Query)
	assert.Equal(t, KindTopic, targets[2].Kind)
}

func TestSelectTargets_ZeroLimit(t *testing.T) {
	p := New(newFakeStore(), nil)
	targets, err := p.SelectTargets(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestRecordEmptyCycle_SetsCooldownAndCounter(t *testing.T) {
	store := newFakeStore(source("UC-empty", 0))
	p := New(store, nil)
	ctx := context.Background()

	require.NoError(t, p.RecordEmptyCycle(ctx, "UC-empty"))

	until, ok := store.cooldowns["UC-empty"]
	require.True(t, ok, "cooldown must be set")
	assert.WithinDuration(t, time.Now().Add(CooldownPeriod), until, time.Minute)
	assert.Equal(t, 1, store.sources[0].ConsecutiveEmptyRuns,
		"empty-run counter increments from 0 to 1")

	// The same target must now be excluded from selection.
	targets, err := p.SelectTargets(ctx, 5)
	require.NoError(t, err)
	for _, target := range targets {
		assert.NotEqual(t, "UC-empty", target.ChannelID)
	}
}

func TestRecordAdmission_ClearsStreak(t *testing.T) {
	store := newFakeStore(source("UC-good", 4))
	p := New(store, nil)

	require.NoError(t, p.RecordAdmission(context.Background(), "UC-good"))
	assert.Equal(t, []string{"UC-good"}, store.cleared)
}

func TestFallbackTargets(t *testing.T) {
	p := New(newFakeStore(), []string{"a", "b", "c"})

	targets := p.FallbackTargets(2)
	require.Len(t, targets, 2)
	assert.Equal(t, KindTopic, targets[0].Kind)
	assert.Equal(t, "a", targets[0].Query)
}
