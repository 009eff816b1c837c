// Package engine implements the Round Executor used by every flow topology.
//
// An Executor takes a set of participant calls for one round, runs them
// concurrently on an errgroup sized to the round, and returns a
// core.RoundResult with exactly one response per call:
//
//	exec := engine.NewExecutor(func(o *engine.Options) {
//	    o.DefaultTimeout = 30 * time.Second
//	    o.Logger = logger
//	})
//	round, err := exec.Execute(ctx, 1, core.PhaseRound1, calls)
//
// Each call runs under its own timeout and is detached from the caller's
// cancellation, so a round that has started always completes. Timeouts,
// provider errors, empty output and panics become the response's Err; they
// never abort sibling calls and are never retried.
//
// The package also provides Signal, a resettable per-engine cancellation
// flag, and a CallbackManager for lifecycle hooks (metrics, logging).
package engine
