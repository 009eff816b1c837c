package artifact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AntoineDubuc/conclave/core"
)

// InMemoryRecorder is a trivial in‑process core.Recorder useful for tests,
// examples and single‑process embedding. It keeps all artifacts in a nested
// map guarded by an RWMutex. Data is copied on retrieval to avoid accidental
// external mutation of internal buffers.
//
// Layout: runID -> artifact name -> rendered markdown
//
// This implementation does not enforce retention limits or eviction.
type InMemoryRecorder struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
	records   map[string][]core.Record
	now       func() time.Time
}

// NewInMemoryRecorder returns an empty in‑memory recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{
		artifacts: make(map[string]map[string][]byte),
		records:   make(map[string][]core.Record),
		now:       time.Now,
	}
}

// Begin implements core.Recorder. The location is "memory://<runID>".
func (r *InMemoryRecorder) Begin(_ context.Context, runID, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.artifacts[runID]; !exists {
		r.artifacts[runID] = make(map[string][]byte)
	}
	return "memory://" + runID, nil
}

// Write implements core.Recorder, overwriting an earlier artifact with the
// same name.
func (r *InMemoryRecorder) Write(_ context.Context, rec core.Record) error {
	data, err := Render(rec, r.now())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.artifacts[rec.RunID]
	if !ok {
		return ErrUnknownRun
	}
	m[Name(rec)] = data
	r.records[rec.RunID] = append(r.records[rec.RunID], rec)
	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (r *InMemoryRecorder) Get(runID, name string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.artifacts[runID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the sorted artifact names stored for the run. The slice is
// a snapshot and safe for caller mutation.
func (r *InMemoryRecorder) List(runID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.artifacts[runID]
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns every record written for the run in write order,
// including overwritten ones.
func (r *InMemoryRecorder) Records(runID string) []core.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.Record(nil), r.records[runID]...)
}

// Runs returns the begun run IDs in sorted order.
func (r *InMemoryRecorder) Runs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.artifacts))
	for id := range r.artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete removes all artifacts of a run or returns ErrNotFound.
func (r *InMemoryRecorder) Delete(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[runID]; !ok {
		return ErrNotFound
	}
	delete(r.artifacts, runID)
	delete(r.records, runID)
	return nil
}
