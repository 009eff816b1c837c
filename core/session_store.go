package core

import "errors"

// ErrSessionNotFound is returned by a SessionStore for unknown run IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists the state of step-mode runs between steps.
// Implementations store and return deep copies so callers never share
// state with the store.
type SessionStore interface {
	// Save stores a snapshot of state under state.RunID.
	Save(state *FlowState) error
	// Get returns the latest snapshot for runID.
	Get(runID string) (*FlowState, error)
	// Delete removes runID. Deleting an unknown run returns ErrSessionNotFound.
	Delete(runID string) error
	// List returns the stored run IDs, sorted.
	List() []string
}
