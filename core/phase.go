package core

// Phase identifies the kind of round or step being executed.
type Phase string

const (
	PhaseNotStarted          Phase = "not_started"
	PhaseRound1              Phase = "round_1"
	PhaseRefinement          Phase = "refinement"
	PhaseLeaderSynthesis     Phase = "leader_synthesis"
	PhaseContributorResponse Phase = "contributor_response"
	PhaseFinalSynthesis      Phase = "final_synthesis"
	PhaseDone                Phase = "done"
	PhaseCancelled           Phase = "cancelled"
)

// HubPhase returns the hub-and-spoke phase of step k: step 1 is Round1,
// even steps are leader synthesis and odd steps contributor responses.
func HubPhase(step int) Phase {
	switch {
	case step <= 1:
		return PhaseRound1
	case step%2 == 0:
		return PhaseLeaderSynthesis
	default:
		return PhaseContributorResponse
	}
}

// RoundRobinPhase returns the round-robin phase of round k.
func RoundRobinPhase(round int) Phase {
	if round <= 1 {
		return PhaseRound1
	}
	return PhaseRefinement
}

// Terminal reports whether no further steps follow the phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseCancelled
}
