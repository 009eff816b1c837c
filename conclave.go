// Package conclave provides a high-level façade over the flow engine, the
// runner and the supporting services (configuration, recorders, metrics and
// logging) for running multi-participant LLM collaboration flows. Most
// applications interact with this package by:
//  1. Loading a configuration (config.Load) or starting from config.Default
//  2. Creating a Conclave via New(), optionally attaching a Prometheus registerer
//  3. Running a named flow (Run) or stepping a hub-and-spoke flow with review
//     (Start, Step, Approve)
//
// Flows with participants built in code can bypass configuration entirely
// through RunFlow.
package conclave

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntoineDubuc/conclave/config"
	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
	"github.com/AntoineDubuc/conclave/flow"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/metrics"
	"github.com/AntoineDubuc/conclave/runner"
)

// Options configures the Conclave instance.
type Options struct {
	// Config supplies flows and participants. Defaults to config.Default().
	Config *config.Config

	// Recorder overrides the configured recorder.
	Recorder core.Recorder

	// SessionStore keeps step-mode state between steps. Defaults to in-memory.
	SessionStore core.SessionStore

	// Logger overrides the configured logger.
	Logger logging.Logger

	// Registerer receives the flow metrics when set.
	Registerer prometheus.Registerer

	// MetricsNamespace prefixes metric names. Defaults to "conclave".
	MetricsNamespace string

	// MaxConcurrentRuns limits blocking runs executing at once. Zero means unlimited.
	MaxConcurrentRuns int

	// Resolve overrides how participant IDs become participants.
	Resolve runner.ResolveFunc
}

// Conclave is the high-level façade aggregating the runner and its services.
type Conclave struct {
	runner    *runner.Runner
	callbacks *engine.CallbackManager
	collector *metrics.Collector
	opts      Options
}

// New creates a new Conclave instance with optional overrides.
func New(optFns ...func(o *Options)) (*Conclave, error) {
	opts := Options{
		Config: config.Default(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		l, err := opts.Config.Logger()
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}

	callbacks := engine.NewCallbackManager()

	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector = metrics.NewCollector(opts.MetricsNamespace, opts.Registerer)
		collector.Register(callbacks)
	}

	r, err := runner.New(opts.Config, func(o *runner.Options) {
		o.Recorder = opts.Recorder
		o.SessionStore = opts.SessionStore
		o.Logger = opts.Logger
		o.Callbacks = callbacks
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.Resolve = opts.Resolve
	})
	if err != nil {
		return nil, err
	}

	return &Conclave{runner: r, callbacks: callbacks, collector: collector, opts: opts}, nil
}

// RegisterCallback adds a lifecycle callback shared by every run. Register
// callbacks before starting runs.
func (c *Conclave) RegisterCallback(cb engine.Callback) { c.callbacks.RegisterCallback(cb) }

// Flows returns the configured flow names.
func (c *Conclave) Flows() []string { return c.opts.Config.FlowNames() }

// Run executes a configured flow to completion.
func (c *Conclave) Run(ctx context.Context, flowName, task string) (*core.FlowResult, error) {
	return c.runner.Run(ctx, flowName, task)
}

// RunFlow executes cfg with participants built by the caller. It shares the
// instance's logger and callbacks but not its recorder; pass one through
// recorder when output should be kept.
func (c *Conclave) RunFlow(ctx context.Context, cfg core.FlowConfig, task string, participants []core.Participant, recorder core.Recorder) (*core.FlowResult, error) {
	e := flow.New(func(o *flow.Options) {
		o.Recorder = recorder
		o.Callbacks = c.callbacks
		o.Logger = c.opts.Logger
	})
	return e.Run(ctx, cfg, task, participants)
}

// Start opens a step-mode session for a configured hub-and-spoke flow.
func (c *Conclave) Start(ctx context.Context, flowName, task string) (*core.FlowState, error) {
	return c.runner.Start(ctx, flowName, task)
}

// Step advances a step-mode session. A non-nil edit replaces a pending synthesis.
func (c *Conclave) Step(ctx context.Context, runID string, edit *string) (*core.FlowState, error) {
	return c.runner.Step(ctx, runID, edit)
}

// Approve accepts a pending synthesis unchanged and advances the session.
func (c *Conclave) Approve(ctx context.Context, runID string) (*core.FlowState, error) {
	return c.runner.Approve(ctx, runID)
}

// Forget drops a step-mode session.
func (c *Conclave) Forget(runID string) error { return c.runner.Forget(runID) }

// Cancel cancels an active run or step session.
func (c *Conclave) Cancel(runID string) error { return c.runner.Cancel(runID) }

// Active returns the IDs of runs in progress.
func (c *Conclave) Active() []string { return c.runner.Active() }

// Close releases the recorder.
func (c *Conclave) Close() error { return c.runner.Close() }
