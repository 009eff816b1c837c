package core

import "context"

// Record is one artifact written by a Recorder.
type Record struct {
	RunID       string
	FlowName    string
	Round       int
	InstanceID  string
	DisplayName string
	Provider    string
	Phase       Phase
	Content     string
	// Final marks the hub-and-spoke final synthesis.
	Final bool
	// Edited marks a synthesis replaced during review.
	Edited bool
}

// Recorder persists the raw output of each round. Writes are fire-and-forget:
// the engine logs failures and never aborts a run because of them.
type Recorder interface {
	// Begin prepares storage for a run and returns its location.
	Begin(ctx context.Context, runID, flowName string) (string, error)
	// Write stores one record. Writing the same (run, round, instance, final)
	// key again replaces the earlier record.
	Write(ctx context.Context, rec Record) error
}

// RunFinisher is implemented by recorders that hold per-run state. The
// engine calls Finish once a run reaches a terminal state; later writes for
// the run may fail.
type RunFinisher interface {
	Finish(ctx context.Context, runID string) error
}

// NopRecorder discards all records.
type NopRecorder struct{}

// Begin implements Recorder.
func (NopRecorder) Begin(context.Context, string, string) (string, error) { return "", nil }

// Write implements Recorder.
func (NopRecorder) Write(context.Context, Record) error { return nil }
