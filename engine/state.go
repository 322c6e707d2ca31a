package engine

import (
	"maps"
	"sync"
)

// Engine state keys with dedicated meaning. Any other key is carried as-is.
const (
	KeyRunnable         = "runnable"
	KeyCtx              = "ctx"
	KeySubject          = "subject"
	KeyViewportWidth    = "viewportWidth"
	KeyViewportHeight   = "viewportHeight"
	KeyRedirectionCount = "redirectionCount"
	KeyOnFail           = "onFail"
)

// FailHandler receives failures reported through Engine.Fail.
type FailHandler func(err error)

// State is the engine's transient key/value store.
// Safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty state store.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Get returns the value stored under key, or nil.
func (s *State) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores a single value.
func (s *State) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// SetAll merges updates into the store in one commit.
func (s *State) SetAll(updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, updates)
}

// Reset drops every stored value.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
}

// Snapshot returns a shallow copy of the store.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
