package curator

import (
	"context"
	"fmt"
	"sync"
)

// SettingsWriter persists the enabled flag.
type SettingsWriter interface {
	SetEnabled(ctx context.Context, enabled bool) error
}

// Toggle is the process-wide enabled flag, constructed once at startup.
// Reads are synchronous against the in-memory value; writes persist first
// and only then update memory, so the two are never observably inconsistent
// after a successful Set.
type Toggle struct {
	mu      sync.RWMutex
	enabled bool
	store   SettingsWriter
}

// NewToggle creates the toggle seeded with the persisted value.
func NewToggle(enabled bool, store SettingsWriter) *Toggle {
	return &Toggle{enabled: enabled, store: store}
}

// Enabled returns the current flag value.
func (t *Toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Set persists the flag, then mirrors it in memory. On a persist failure the
// in-memory value is left untouched.
func (t *Toggle) Set(ctx context.Context, enabled bool) error {
	if err := t.store.SetEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("failed to persist enabled flag: %w", err)
	}
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
	return nil
}
