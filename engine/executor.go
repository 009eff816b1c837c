package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/model"
)

// ErrEmptyRound is returned when a round is executed without any calls.
var ErrEmptyRound = errors.New("round has no participant calls")

// Call is one participant invocation within a round.
type Call struct {
	Participant core.Participant
	Request     model.CompletionRequest
	// Timeout overrides the executor default when positive.
	Timeout time.Duration
}

// Options configures an Executor.
type Options struct {
	// DefaultTimeout caps calls that carry no timeout of their own.
	DefaultTimeout time.Duration

	// Callbacks receive AfterCall notifications. May be nil.
	Callbacks *CallbackManager

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Executor fans a round's calls out concurrently and gathers one response
// per call. Per-call failures are captured in the responses and never abort
// sibling calls.
type Executor struct {
	defaultTimeout time.Duration
	callbacks      *CallbackManager
	logger         logging.Logger
}

// NewExecutor creates an executor with a 120s default call timeout.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{
		DefaultTimeout: core.DefaultCallTimeout,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = core.DefaultCallTimeout
	}

	return &Executor{
		defaultTimeout: opts.DefaultTimeout,
		callbacks:      opts.Callbacks,
		logger:         opts.Logger,
	}
}

// Execute runs every call concurrently and returns a RoundResult whose
// responses appear in completion order, one per call. It fails only when
// calls is empty.
//
// Calls are detached from ctx cancellation so that a round which has started
// always runs to completion; each call is still bounded by its timeout.
func (e *Executor) Execute(ctx context.Context, round int, phase core.Phase, calls map[string]Call) (core.RoundResult, error) {
	if len(calls) == 0 {
		return core.RoundResult{}, fmt.Errorf("%w: round %d", ErrEmptyRound, round)
	}

	result := core.RoundResult{
		Number:    round,
		Phase:     phase,
		Responses: make([]core.ParticipantResponse, 0, len(calls)),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	// One slot per participant so nobody queues behind a sibling.
	g.SetLimit(len(calls))

	for id, call := range calls {
		g.Go(func() error {
			resp := e.invoke(ctx, round, phase, id, call)

			mu.Lock()
			result.Responses = append(result.Responses, resp)
			mu.Unlock()

			e.afterCall(ctx, round, phase, call, resp)

			// Failures live in the response; never cancel siblings.
			return nil
		})
	}

	_ = g.Wait()

	return result, nil
}

type outcome struct {
	completion model.Completion
	err        error
}

func (e *Executor) invoke(ctx context.Context, round int, phase core.Phase, id string, call Call) core.ParticipantResponse {
	provider := ProviderOf(call.Participant)

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := &model.Error{Provider: provider, Kind: model.KindPanic, Err: fmt.Errorf("participant panicked: %v", r)}
				if sl, ok := e.logger.(logging.StackLogger); ok {
					sl.ErrorWithStack(err, "participant panicked", "instance_id", id, "round", round)
				}
				done <- outcome{err: err}
			}
		}()

		c, err := call.Participant.Model.Generate(callCtx, call.Request)
		done <- outcome{completion: c, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		// A participant ignoring its deadline is abandoned here.
		out = outcome{err: &model.Error{Provider: provider, Kind: model.KindTimeout, Err: fmt.Errorf("no response within %s: %w", timeout, callCtx.Err())}}
	}

	resp := core.ParticipantResponse{
		InstanceID:  id,
		DisplayName: call.Participant.Name(),
		Round:       round,
		Phase:       phase,
		Duration:    time.Since(start),
	}

	switch {
	case out.err != nil:
		resp.Err = model.Wrap(provider, out.err)
	case strings.TrimSpace(out.completion.Text) == "":
		resp.Err = &model.Error{Provider: provider, Kind: model.KindMalformed, Err: errors.New("empty response")}
	default:
		resp.Content = out.completion.Text
	}

	switch l := e.logger.(type) {
	case logging.CallLogger:
		l.LogParticipantCall(id, provider, round, resp.Duration, resp.Err,
			"run_id", RunInfoFrom(ctx).RunID, "phase", phase, "kind", model.KindOf(resp.Err))
	default:
		if resp.Err != nil {
			e.logger.Warn("participant call failed",
				"instance_id", id, "round", round, "phase", phase,
				"duration", resp.Duration, "kind", model.KindOf(resp.Err), "error", resp.Err)
		} else {
			e.logger.Debug("participant call completed",
				"instance_id", id, "round", round, "phase", phase,
				"duration", resp.Duration, "chars", len(resp.Content))
		}
	}

	return resp
}

func (e *Executor) afterCall(ctx context.Context, round int, phase core.Phase, call Call, resp core.ParticipantResponse) {
	info := RunInfoFrom(ctx)

	err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterCall, &CallbackContext{
		RunID:    info.RunID,
		FlowName: info.FlowName,
		Topology: info.Topology,
		Round:    round,
		Phase:    phase,
		Provider: ProviderOf(call.Participant),
		Response: &resp,
	})
	if err != nil {
		e.logger.Warn("callback failed", "type", CallbackAfterCall, "instance_id", resp.InstanceID, "error", err)
	}
}

// ProviderOf returns the provider name reported by the participant's model,
// falling back to its configured provider kind.
func ProviderOf(p core.Participant) string {
	if p.Model != nil {
		if provider := p.Model.Info().Provider; provider != "" {
			return provider
		}
	}
	return string(p.ProviderKind)
}
