package lifecycle

import (
	"sync"
)

// Markers is a process-local record of gifts whose claim this process has
// already confirmed on-chain. It plays the role the original share links'
// `gift_claimed_<id>` browser storage key plays across tabs: a latency hint
// that lets a second claim attempt short-circuit to already-claimed before
// the next on-chain read lands.
//
// It is never authoritative. A cleared or empty marker set changes nothing
// about claim eligibility; the on-chain read still decides.
type Markers struct {
	mu        sync.RWMutex
	claimed   map[string]struct{}
	observers []func(giftID string)
}

// NewMarkers creates an empty marker set.
func NewMarkers() *Markers {
	return &Markers{claimed: make(map[string]struct{})}
}

// MarkClaimed records a confirmed claim for giftID and notifies observers.
func (m *Markers) MarkClaimed(giftID string) {
	m.mu.Lock()
	if _, ok := m.claimed[giftID]; ok {
		m.mu.Unlock()
		return
	}
	m.claimed[giftID] = struct{}{}
	observers := make([]func(string), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(giftID)
	}
}

// AlreadyClaimed reports whether this process has seen giftID claimed.
func (m *Markers) AlreadyClaimed(giftID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.claimed[giftID]
	return ok
}

// Observe registers a callback invoked whenever a new claim is marked,
// the analog of listening for storage events from other tabs. Callers use
// it to re-run reconciliation for the affected gift.
func (m *Markers) Observe(fn func(giftID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Clear drops all markers. Used by tests to model a wiped local store.
func (m *Markers) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed = make(map[string]struct{})
}
