// Package core defines the data model shared by the conclave packages:
//
//   - Participants and their validation
//   - Flow configuration, topologies and phases
//   - Per-call responses, round results and flow results
//   - The step-mode FlowState
//   - The Recorder contract used to persist round artifacts
//   - The SessionStore contract used to keep step-mode state between steps
//
// The package holds no orchestration logic; see the engine and flow packages.
package core
