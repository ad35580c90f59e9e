// Package rotation decides which curation targets each run queries, ranked
// by library under-representation.
package rotation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonathan/video-curator/internal/db"
)

// TargetKind distinguishes channel targets from generic topic fallbacks.
type TargetKind int

const (
	KindChannel TargetKind = iota
	KindTopic
)

// Target is one unit of the run's slate.
type Target struct {
	Kind      TargetKind
	ChannelID string
	Title     string
	Verified  bool
	Query     string
}

// Priority tiers by current library representation.
const (
	// tier1Below marks severely under-represented sources.
	tier1Below = 5
	// tier2Below marks moderately under-represented sources.
	tier2Below = 20
)

// Slate composition: most slots go to tier 1, a few to tier 2, and a couple
// of random tier-3 picks keep well-represented sources refreshing.
const (
	tier2Share = 4
	tier3Picks = 2
)

// CooldownPeriod is how long a zero-admission target is excluded.
const CooldownPeriod = 21 * 24 * time.Hour

// Store is the source-state persistence the policy reads and writes.
type Store interface {
	ListSelectableSources(ctx context.Context, now time.Time) ([]db.SourceState, error)
	SetSourceCooldown(ctx context.Context, channelID string, until time.Time) error
	ClearSourceEmptyRuns(ctx context.Context, channelID string) error
}

// Policy selects targets and maintains cooldown state.
type Policy struct {
	store          Store
	fallbackTopics []string
	now            func() time.Time
	rand           *rand.Rand
}

// New creates a policy. fallbackTopics are the generic queries used when
// channel targets dry up.
func New(store Store, fallbackTopics []string) *Policy {
	return &Policy{
		store:          store,
		fallbackTopics: fallbackTopics,
		now:            time.Now,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectTargets returns up to limit targets for this cycle. Sources under an
// active cooldown are excluded regardless of tier. When eligible channels
// cannot fill the slate, topic fallbacks are appended.
func (p *Policy) SelectTargets(ctx context.Context, limit int) ([]Target, error) {
	if limit <= 0 {
		return nil, nil
	}

	sources, err := p.store.ListSelectableSources(ctx, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list selectable sources: %w", err)
	}

	var tier1, tier2, tier3 []db.SourceState
	for _, s := range sources {
		switch {
		case s.LibraryCount < tier1Below:
			tier1 = append(tier1, s)
		case s.LibraryCount < tier2Below:
			tier2 = append(tier2, s)
		default:
			tier3 = append(tier3, s)
		}
	}

	// Reserve a couple of random tier-3 refresh picks and a small tier-2
	// share; everything else goes to the most under-represented sources.
	// Both reservations scale to zero on small slates so tier 1 always
	// gets the first slots.
	slate := make([]Target, 0, limit)
	tier2Quota := min(tier2Share, limit/4)
	tier3Quota := min(tier3Picks, limit/8)
	tier1Quota := limit - tier2Quota - tier3Quota

	slate = appendChannels(slate, tier1, tier1Quota)

	// Unused tier-1 room rolls down rather than going idle.
	tier2Quota += tier1Quota - len(slate)
	slate = appendChannels(slate, tier2, tier2Quota)

	p.rand.Shuffle(len(tier3), func(i, j int) { tier3[i], tier3[j] = tier3[j], tier3[i] })
	slate = appendChannels(slate, tier3, limit-len(slate))

	for _, topic := range p.fallbackTopics {
		if len(slate) >= limit {
			break
		}
		slate = append(slate, Target{Kind: KindTopic, Query: topic})
	}

	return slate, nil
}

func appendChannels(slate []Target, sources []db.SourceState, quota int) []Target {
	for _, s := range sources {
		if quota <= 0 {
			break
		}
		slate = append(slate, Target{
			Kind:      KindChannel,
			ChannelID: s.ChannelID,
			Title:     s.ChannelTitle,
			Verified:  s.Verified,
			Query:     s.ChannelTitle + " lesson tutorial",
		})
		quota--
	}
	return slate
}

// FallbackTargets returns topic-only targets, used when the circuit breaker
// trips mid-run after consecutive empty channel targets.
func (p *Policy) FallbackTargets(limit int) []Target {
	targets := make([]Target, 0, limit)
	for _, topic := range p.fallbackTopics {
		if len(targets) >= limit {
			break
		}
		targets = append(targets, Target{Kind: KindTopic, Query: topic})
	}
	return targets
}

// RecordEmptyCycle marks a channel target that admitted nothing across its
// allotted queries: cooldown for several weeks, empty-run counter bumped.
func (p *Policy) RecordEmptyCycle(ctx context.Context, channelID string) error {
	until := p.now().Add(CooldownPeriod)
	if err := p.store.SetSourceCooldown(ctx, channelID, until); err != nil {
		return fmt.Errorf("failed to cool down source %s: %w", channelID, err)
	}
	return nil
}

// RecordAdmission resets a channel's empty-run streak after a cycle that
// admitted at least one item.
func (p *Policy) RecordAdmission(ctx context.Context, channelID string) error {
	if err := p.store.ClearSourceEmptyRuns(ctx, channelID); err != nil {
		return fmt.Errorf("failed to clear empty-run streak for %s: %w", channelID, err)
	}
	return nil
}
