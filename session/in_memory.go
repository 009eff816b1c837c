package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AntoineDubuc/conclave/core"
)

// InMemoryStore is a volatile SessionStore implementation storing step-mode
// state in a process local map. It is safe for concurrent access. States are
// cloned on the way in and out to prevent external mutation.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*core.FlowState
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*core.FlowState)}
}

// Save stores a clone of the provided state.
func (s *InMemoryStore) Save(state *core.FlowState) error {
	if state == nil || state.RunID == "" {
		return fmt.Errorf("%w: state without run id", core.ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.RunID] = state.Clone()
	return nil
}

// Get returns a clone of the stored state.
func (s *InMemoryStore) Get(runID string) (*core.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, runID)
	}
	return state.Clone(), nil
}

// Delete removes a stored state.
func (s *InMemoryStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[runID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, runID)
	}
	delete(s.states, runID)
	return nil
}

// List returns the stored run IDs in sorted order.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
