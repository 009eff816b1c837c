// Package flow drives multi-participant collaboration flows.
//
// Two topologies are supported:
//
//   - Round-robin: round 1 collects independent answers, every later round
//     shows each participant its own previous answer and all peer answers
//     from the round before.
//   - Hub-and-spoke: round 1 collects independent answers, then a leader
//     synthesizes on even steps and contributors respond on odd steps, ending
//     with one final synthesis by the leader.
//
// Hub-and-spoke can also be driven one step at a time through InitStepState
// and StepOnce, pausing after every leader synthesis for review.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
	"github.com/AntoineDubuc/conclave/internal/util"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/model"
)

// ErrEmptyEdit is returned when a review edit contains no text.
var ErrEmptyEdit = errors.New("edited synthesis is empty")

// Options configures an Engine.
type Options struct {
	// Executor runs each round. Defaults to an executor sharing Logger and Callbacks.
	Executor *engine.Executor

	// Recorder persists round output. Defaults to core.NopRecorder.
	Recorder core.Recorder

	// Signal is an optional resettable cancellation flag checked before every
	// round, in addition to the context passed to each entry point.
	Signal *engine.Signal

	// Callbacks receive round and flow lifecycle notifications. May be nil.
	Callbacks *engine.CallbackManager

	// NewRunID generates run identifiers. Defaults to random UUIDs.
	NewRunID func() string

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Engine runs flows. An Engine holds no per-run state and may run several
// flows concurrently; they then share its Signal.
type Engine struct {
	executor  *engine.Executor
	recorder  core.Recorder
	signal    *engine.Signal
	callbacks *engine.CallbackManager
	newRunID  func() string
	logger    logging.Logger
}

// New creates an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Recorder: core.NopRecorder{},
		NewRunID: util.NewID,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Recorder == nil {
		opts.Recorder = core.NopRecorder{}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = util.NewID
	}
	if opts.Executor == nil {
		opts.Executor = engine.NewExecutor(func(o *engine.Options) {
			o.Logger = opts.Logger
			o.Callbacks = opts.Callbacks
		})
	}

	return &Engine{
		executor:  opts.Executor,
		recorder:  opts.Recorder,
		signal:    opts.Signal,
		callbacks: opts.Callbacks,
		newRunID:  opts.NewRunID,
		logger:    opts.Logger,
	}
}

// Signal returns the engine's cancellation signal, or nil if none was configured.
func (e *Engine) Signal() *engine.Signal {
	return e.signal
}

// Run dispatches on cfg.Topology.
func (e *Engine) Run(ctx context.Context, cfg core.FlowConfig, task string, participants []core.Participant) (*core.FlowResult, error) {
	switch cfg.Topology {
	case core.TopologyHubAndSpoke:
		return e.RunHubAndSpoke(ctx, cfg, task, participants)
	case core.TopologyRoundRobin, "":
		return e.RunRoundRobin(ctx, cfg, task, participants)
	default:
		return nil, fmt.Errorf("%w: unknown topology %q", core.ErrInvalidConfig, cfg.Topology)
	}
}

func (e *Engine) cancelled(ctx context.Context) bool {
	return engine.IsCancelled(ctx, e.signal)
}

// begin opens the recorder for a run and returns its location. Failures are
// logged and yield an empty location.
func (e *Engine) begin(ctx context.Context, runID, flowName string) string {
	location, err := e.recorder.Begin(ctx, runID, flowName)
	if err != nil {
		e.logger.Warn("recorder begin failed", "run_id", runID, "flow", flowName, "error", err)
		return ""
	}
	return location
}

// request builds the call for p from a composed prompt.
func (e *Engine) request(cfg core.FlowConfig, composer *Composer, p core.Participant, prompt string) engine.Call {
	return engine.Call{
		Participant: p,
		Request: model.CompletionRequest{
			Prompt:       prompt,
			SystemPrompt: composer.SystemPrompt(p),
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		},
		Timeout: cfg.CallTimeout,
	}
}

// executeRound runs one round and fires the round callbacks.
func (e *Engine) executeRound(ctx context.Context, round int, phase core.Phase, calls map[string]engine.Call) core.RoundResult {
	info := engine.RunInfoFrom(ctx)

	e.logger.Info("round started", "run_id", info.RunID, "round", round, "phase", phase, "participants", len(calls))
	e.fire(ctx, engine.CallbackBeforeRound, &engine.CallbackContext{Round: round, Phase: phase})

	start := time.Now()
	result, err := e.executor.Execute(ctx, round, phase, calls)
	if err != nil {
		// Only an empty round fails, and flows never build one.
		e.logger.Error("round execution failed", "run_id", info.RunID, "round", round, "error", err)
		return core.RoundResult{Number: round, Phase: phase}
	}

	e.logger.Info("round finished", "run_id", info.RunID, "round", round, "phase", phase,
		"succeeded", len(result.Successes()), "failed", len(result.Failures()), "duration", time.Since(start))
	e.fire(ctx, engine.CallbackAfterRound, &engine.CallbackContext{Round: round, Phase: phase, RoundResult: &result})

	return result
}

// record writes every successful response of a round.
func (e *Engine) record(ctx context.Context, participants []core.Participant, rr core.RoundResult) {
	for _, resp := range rr.Responses {
		if !resp.OK() {
			continue
		}
		e.write(ctx, participants, resp, false)
	}
}

func (e *Engine) write(ctx context.Context, participants []core.Participant, resp core.ParticipantResponse, final bool) {
	info := engine.RunInfoFrom(ctx)

	var provider string
	if p, ok := core.FindParticipant(participants, resp.InstanceID); ok {
		provider = engine.ProviderOf(p)
	}

	err := e.recorder.Write(ctx, core.Record{
		RunID:       info.RunID,
		FlowName:    info.FlowName,
		Round:       resp.Round,
		InstanceID:  resp.InstanceID,
		DisplayName: resp.DisplayName,
		Provider:    provider,
		Phase:       resp.Phase,
		Content:     resp.Content,
		Final:       final,
		Edited:      resp.Edited,
	})
	if err != nil {
		e.logger.Warn("recorder write failed", "run_id", info.RunID, "round", resp.Round, "instance_id", resp.InstanceID, "error", err)
	}
}

// finish logs the run summary and fires the flow callbacks once a run
// reaches a terminal state. err is the terminal error of a run that still
// completed, if any.
func (e *Engine) finish(ctx context.Context, result *core.FlowResult, started time.Time, err error) {
	dur := time.Since(started)
	if fl, ok := e.logger.(logging.FlowExecutionLogger); ok {
		fl.LogFlowExecution(string(result.Topology), len(result.Rounds), dur, string(result.Outcome), err,
			"run_id", result.RunID, "flow", result.FlowName)
	} else {
		e.logger.Info("flow finished",
			"run_id", result.RunID, "flow", result.FlowName, "topology", result.Topology,
			"outcome", result.Outcome, "rounds", len(result.Rounds), "duration", dur)
	}
	e.fire(ctx, engine.CallbackAfterFlow, &engine.CallbackContext{Result: result})

	if fin, ok := e.recorder.(core.RunFinisher); ok {
		if err := fin.Finish(ctx, result.RunID); err != nil {
			e.logger.Warn("recorder finish failed", "run_id", result.RunID, "error", err)
		}
	}
}

func (e *Engine) fire(ctx context.Context, typ engine.CallbackType, cc *engine.CallbackContext) {
	info := engine.RunInfoFrom(ctx)
	cc.RunID = info.RunID
	cc.FlowName = info.FlowName
	cc.Topology = info.Topology

	if err := e.callbacks.ExecuteCallbacks(ctx, typ, cc); err != nil {
		e.logger.Warn("callback failed", "type", typ, "run_id", info.RunID, "error", err)
	}
}
