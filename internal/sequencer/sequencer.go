// Package sequencer serializes work per key.
package sequencer

import "sync"

type slot struct {
	mu   sync.Mutex
	refs int
}

// Sequencer runs functions one at a time per key while different keys
// proceed in parallel. A disabled Sequencer runs functions directly.
type Sequencer struct {
	enabled bool
	mu      sync.Mutex
	slots   map[int64]*slot
}

// New returns a sequencer. With enabled false, Do does no ordering at all.
func New(enabled bool) *Sequencer {
	return &Sequencer{enabled: enabled, slots: make(map[int64]*slot)}
}

// Enabled reports whether work is serialized.
func (s *Sequencer) Enabled() bool {
	return s.enabled
}

// Do runs fn while holding the slot for key.
func (s *Sequencer) Do(key int64, fn func() error) error {
	if !s.enabled {
		return fn()
	}

	s.mu.Lock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{}
		s.slots[key] = sl
	}
	sl.refs++
	s.mu.Unlock()

	sl.mu.Lock()
	defer func() {
		sl.mu.Unlock()
		s.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(s.slots, key)
		}
		s.mu.Unlock()
	}()

	return fn()
}

// Len returns the number of keys currently held or waited on.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
