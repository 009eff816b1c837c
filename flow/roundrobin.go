package flow

import (
	"context"
	"time"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
)

// RunRoundRobin runs cfg.MaxRounds rounds over all participants. Round 1
// asks each participant independently; every later round shows each
// participant its own last answer and its peers' answers from the previous
// round.
//
// Configuration errors are returned before any call is issued. Cancellation
// yields a result with Outcome cancelled and a nil error.
func (e *Engine) RunRoundRobin(ctx context.Context, cfg core.FlowConfig, task string, participants []core.Participant) (*core.FlowResult, error) {
	cfg = cfg.WithDefaults()
	cfg.Topology = core.TopologyRoundRobin

	if err := cfg.Validate(participants); err != nil {
		return nil, err
	}

	started := time.Now()
	runID := e.newRunID()
	ctx = engine.WithRunInfo(ctx, engine.RunInfo{RunID: runID, FlowName: cfg.Name, Topology: cfg.Topology})

	result := &core.FlowResult{
		RunID:    runID,
		FlowName: cfg.Name,
		Topology: cfg.Topology,
		Outcome:  core.OutcomeCompleted,
		Location: e.begin(ctx, runID, cfg.Name),
	}

	composer := NewComposer(cfg)

	// previous holds round k-1 successes; own holds each participant's last
	// successful output from any round.
	var previous map[string]string
	own := make(map[string]string, len(participants))

	for round := 1; round <= cfg.MaxRounds; round++ {
		if e.cancelled(ctx) {
			result.Outcome = core.OutcomeCancelled
			break
		}

		phase := core.RoundRobinPhase(round)
		tag := Tag{Topology: core.TopologyRoundRobin, Phase: phase}

		calls := make(map[string]engine.Call, len(participants))
		for _, p := range participants {
			prompt := composer.Compose(tag, PromptInput{
				Task:        task,
				Round:       round,
				Participant: p.Name(),
				Previous:    own[p.InstanceID],
				Peers:       labelled(participants, previous, p.InstanceID),
			})
			calls[p.InstanceID] = e.request(cfg, composer, p, prompt)
		}

		rr := e.executeRound(ctx, round, phase, calls)

		if e.cancelled(ctx) {
			e.logger.Info("discarding round completed after cancellation", "run_id", runID, "round", round)
			result.Outcome = core.OutcomeCancelled
			break
		}

		result.Rounds = append(result.Rounds, rr)
		previous = rr.Successes()
		for id, content := range previous {
			own[id] = content
		}
		e.record(ctx, participants, rr)
	}

	e.finish(ctx, result, started, nil)

	return result, nil
}
