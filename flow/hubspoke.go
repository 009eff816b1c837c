package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
)

// RunHubAndSpoke runs a hub-and-spoke flow to completion. Step 1 asks every
// participant, including the leader; even steps ask the leader to synthesize
// and odd steps ask contributors to respond to the synthesis. Once the step
// counter exceeds cfg.MaxRounds the leader produces one final synthesis,
// stored in FlowResult.Final.
//
// Leader syntheses are accepted as produced. Use InitStepState and StepOnce
// to review them.
func (e *Engine) RunHubAndSpoke(ctx context.Context, cfg core.FlowConfig, task string, participants []core.Participant) (*core.FlowResult, error) {
	state, err := e.InitStepState(ctx, cfg, task, participants)
	if err != nil {
		return nil, err
	}

	for !state.Finished() {
		if err := e.step(ctx, state, nil, true); err != nil {
			return nil, err
		}
	}

	return state.Result, nil
}

// InitStepState validates the configuration and returns the state of a
// hub-and-spoke run that has not executed any step yet.
func (e *Engine) InitStepState(ctx context.Context, cfg core.FlowConfig, task string, participants []core.Participant) (*core.FlowState, error) {
	cfg = cfg.WithDefaults()
	cfg.Topology = core.TopologyHubAndSpoke

	if err := cfg.Validate(participants); err != nil {
		return nil, err
	}

	runID := e.newRunID()
	ctx = engine.WithRunInfo(ctx, engine.RunInfo{RunID: runID, FlowName: cfg.Name, Topology: cfg.Topology})

	return &core.FlowState{
		RunID:         runID,
		Config:        cfg,
		Task:          task,
		Participants:  append([]core.Participant(nil), participants...),
		Contributions: make(map[string]string, len(participants)),
		LastOutputs:   make(map[string]string, len(participants)),
		Phase:         core.PhaseNotStarted,
		Result: &core.FlowResult{
			RunID:    runID,
			FlowName: cfg.Name,
			Topology: cfg.Topology,
			LeaderID: cfg.Leader,
			Location: e.begin(ctx, runID, cfg.Name),
		},
		StartedAt: time.Now(),
	}, nil
}

// StepOnce executes exactly one step of a hub-and-spoke run, mutating state
// in place, and returns it.
//
// After a successful leader synthesis the state is left PendingReview. While
// pending, a nil edit leaves the state untouched; a non-nil edit replaces the
// synthesis, clears the pause and runs the following step in the same call.
// Stepping a complete or cancelled state returns core.ErrFlowFinished.
func (e *Engine) StepOnce(ctx context.Context, state *core.FlowState, edit *string) (*core.FlowState, error) {
	if err := e.step(ctx, state, edit, false); err != nil {
		return state, err
	}
	return state, nil
}

// Approve accepts a pending synthesis unchanged and runs the following step.
// Without a pending review it behaves like StepOnce with no edit.
func (e *Engine) Approve(ctx context.Context, state *core.FlowState) (*core.FlowState, error) {
	if err := e.step(ctx, state, nil, true); err != nil {
		return state, err
	}
	return state, nil
}

func (e *Engine) step(ctx context.Context, state *core.FlowState, edit *string, accept bool) error {
	if state == nil || state.Result == nil {
		return fmt.Errorf("%w: flow state was not initialized", core.ErrInvalidConfig)
	}
	if state.Finished() {
		return core.ErrFlowFinished
	}
	if state.PendingReview && edit != nil && strings.TrimSpace(*edit) == "" {
		return ErrEmptyEdit
	}

	ctx = engine.WithRunInfo(ctx, engine.RunInfo{RunID: state.RunID, FlowName: state.Config.Name, Topology: state.Config.Topology})

	if e.cancelled(ctx) {
		e.markCancelled(ctx, state)
		return nil
	}

	if edit != nil && !state.PendingReview {
		e.logger.Debug("ignoring edit without pending review", "run_id", state.RunID, "round", state.Round)
	}

	if state.PendingReview {
		switch {
		case edit != nil:
			e.applyEdit(ctx, state, *edit)
		case accept:
			state.PendingReview = false
		default:
			return nil
		}
	}

	e.advance(ctx, state)

	return nil
}

// applyEdit replaces the pending synthesis everywhere it is stored.
func (e *Engine) applyEdit(ctx context.Context, state *core.FlowState, text string) {
	leader := state.Config.Leader

	state.Synthesis = text
	state.Contributions[leader] = text
	state.LastOutputs[leader] = text
	state.PendingReview = false

	rounds := state.Result.Rounds
	if len(rounds) == 0 {
		return
	}
	last := &rounds[len(rounds)-1]
	for i := range last.Responses {
		resp := &last.Responses[i]
		if resp.InstanceID != leader {
			continue
		}
		resp.Content = text
		resp.Err = nil
		resp.Edited = true
		e.write(ctx, state.Participants, *resp, false)
	}

	e.logger.Info("synthesis edited", "run_id", state.RunID, "round", last.Number)
}

// advance runs the next step according to the step parity rule.
func (e *Engine) advance(ctx context.Context, state *core.FlowState) {
	cfg := state.Config
	step := state.Round + 1

	if step > cfg.MaxRounds {
		e.finalSynthesis(ctx, state, step)
		return
	}

	composer := NewComposer(cfg)
	phase := core.HubPhase(step)
	tag := Tag{Topology: core.TopologyHubAndSpoke, Phase: phase}
	leader, _ := state.Leader()

	calls := make(map[string]engine.Call, len(state.Participants))
	switch phase {
	case core.PhaseRound1:
		for _, p := range state.Participants {
			prompt := composer.Compose(tag, PromptInput{Task: state.Task, Round: step, Participant: p.Name()})
			calls[p.InstanceID] = e.request(cfg, composer, p, prompt)
		}
	case core.PhaseLeaderSynthesis:
		prompt := composer.Compose(tag, PromptInput{
			Task:          state.Task,
			Round:         step,
			Participant:   leader.Name(),
			Previous:      state.LastOutputs[leader.InstanceID],
			Contributions: labelled(state.Participants, state.Contributions, ""),
		})
		calls[leader.InstanceID] = e.request(cfg, composer, leader, prompt)
	default:
		for _, p := range state.Contributors() {
			prompt := composer.Compose(tag, PromptInput{
				Task:        state.Task,
				Round:       step,
				Participant: p.Name(),
				Previous:    state.LastOutputs[p.InstanceID],
				Synthesis:   state.Synthesis,
			})
			calls[p.InstanceID] = e.request(cfg, composer, p, prompt)
		}
	}

	rr := e.executeRound(ctx, step, phase, calls)

	if e.cancelled(ctx) {
		e.logger.Info("discarding step completed after cancellation", "run_id", state.RunID, "round", step)
		e.markCancelled(ctx, state)
		return
	}

	state.Round = step
	state.Phase = phase
	state.Result.Rounds = append(state.Result.Rounds, rr)
	e.record(ctx, state.Participants, rr)

	successes := rr.Successes()
	for id, content := range successes {
		state.LastOutputs[id] = content
	}

	switch phase {
	case core.PhaseRound1:
		state.Contributions = successes
	case core.PhaseLeaderSynthesis:
		synthesis, ok := successes[leader.InstanceID]
		if !ok {
			e.logger.Warn("leader synthesis failed", "run_id", state.RunID, "round", step, "leader", leader.InstanceID)
			return
		}
		state.Synthesis = synthesis
		state.Contributions[leader.InstanceID] = synthesis
		state.PendingReview = true
	default:
		if latest, ok := state.Contributions[leader.InstanceID]; ok {
			successes[leader.InstanceID] = latest
		}
		state.Contributions = successes
	}
}

// finalSynthesis asks the leader for the closing synthesis and completes the run.
func (e *Engine) finalSynthesis(ctx context.Context, state *core.FlowState, step int) {
	cfg := state.Config
	composer := NewComposer(cfg)
	leader, _ := state.Leader()

	prompt := composer.Compose(Tag{Topology: core.TopologyHubAndSpoke, Phase: core.PhaseFinalSynthesis}, PromptInput{
		Task:          state.Task,
		Round:         step,
		Participant:   leader.Name(),
		Previous:      state.LastOutputs[leader.InstanceID],
		Contributions: labelled(state.Participants, state.Contributions, ""),
	})

	rr := e.executeRound(ctx, step, core.PhaseFinalSynthesis, map[string]engine.Call{
		leader.InstanceID: e.request(cfg, composer, leader, prompt),
	})

	if e.cancelled(ctx) {
		e.logger.Info("discarding final synthesis completed after cancellation", "run_id", state.RunID)
		e.markCancelled(ctx, state)
		return
	}

	state.Round = step
	if len(rr.Responses) > 0 {
		final := rr.Responses[0]
		state.Result.Final = &final
		if final.OK() {
			state.Synthesis = final.Content
			e.write(ctx, state.Participants, final, true)
		} else {
			state.Err = final.Err
			e.logger.Error("final synthesis failed", "run_id", state.RunID, "leader", leader.InstanceID, "error", final.Err)
		}
	}

	state.Complete = true
	state.PendingReview = false
	state.Phase = core.PhaseDone
	state.Result.Outcome = core.OutcomeCompleted

	e.finish(ctx, state.Result, state.StartedAt, state.Err)
}

func (e *Engine) markCancelled(ctx context.Context, state *core.FlowState) {
	state.Cancelled = true
	state.PendingReview = false
	state.Phase = core.PhaseCancelled
	state.Result.Outcome = core.OutcomeCancelled

	e.finish(ctx, state.Result, state.StartedAt, nil)
}
