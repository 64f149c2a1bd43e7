package rules

import (
	"sync"
	"sync/atomic"
)

// Store owns the current rule table snapshot. Compilation produces a fresh
// immutable table and swaps a single pointer, so a scan in progress always
// observes one consistent version. Readers call Current once per request and
// hold that snapshot throughout.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[RuleTable]
}

// NewStore creates an empty store with no published table.
func NewStore() *Store {
	return &Store{}
}

// Current returns the published snapshot, or nil when no table has been
// compiled yet.
func (s *Store) Current() *RuleTable {
	return s.current.Load()
}

// Publish compiles the accepted sources against the current snapshot and
// atomically swaps in the result. The mutex serializes writers only; readers
// are never blocked.
func (s *Store) Publish(accepted []*TopicSource) *RuleTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := compile(s.current.Load(), accepted)
	s.current.Store(next)
	return next
}

// Retire removes one source's contribution and publishes the rebuilt table.
// It reports whether the source was contributing.
func (s *Store) Retire(sourceID string) (*RuleTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := retire(s.current.Load(), sourceID)
	if ok {
		s.current.Store(next)
	}
	return next, ok
}
