// Package artifact contains implementations of the core.Recorder contract.
//
// The Recorder interface lives in the core package to avoid dependency
// cycles. Implementations here persist one markdown artifact per successful
// participant response:
//
//   - DirRecorder writes a uniquely named run directory on disk
//   - InMemoryRecorder keeps artifacts in process, for tests and embedding
//
// A SQLite backed recorder lives in the artifact/sqlite subpackage.
//
// Each artifact is markdown with a YAML front matter header (see Render and
// Parse) and is named round_<n>_<instance>.md, or final_synthesis.md for the
// hub-and-spoke final synthesis.
package artifact
