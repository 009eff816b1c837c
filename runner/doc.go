// Package runner executes configured flows by name.
//
// A Runner resolves a flow definition and its participants from a
// config.Config, runs it through the flow engine with a shared executor and
// recorder, and tracks every active run so it can be cancelled on its own.
//
// # Responsibilities
//   - Blocking runs of either topology (Run)
//   - Step-mode sessions for hub-and-spoke flows with synthesis review
//     (Start, Step, Approve, State, Forget)
//   - Per-run cancellation through a cancellable context and a run-scoped
//     Signal (Cancel, Active)
package runner
