// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that executors, flows and runners use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and FlowLogger built on Go's structured logging
//   - ZapAdapter for applications already standardised on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := flow.New(func(o *flow.Options) { o.Logger = logger })
//
// Arguments after the message are key/value pairs in every implementation.
package logging
