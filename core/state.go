package core

import "time"

// FlowState is the step-mode state of a hub-and-spoke run. It is created by
// the flow initializer and mutated only by the step transition.
type FlowState struct {
	RunID        string
	Config       FlowConfig
	Task         string
	Participants []Participant

	// Contributions feeds prompt composition: the successful outputs of the
	// previous step plus the leader's latest synthesis.
	Contributions map[string]string
	// LastOutputs holds each participant's own last successful output.
	LastOutputs map[string]string
	// Synthesis is the leader's latest synthesis.
	Synthesis string

	// Round counts executed steps; 0 means not started.
	Round         int
	Phase         Phase
	PendingReview bool
	Complete      bool
	Cancelled     bool
	// Err is terminal and set when the final synthesis fails.
	Err error

	Result    *FlowResult
	StartedAt time.Time
}

// Leader returns the configured leader participant.
func (s *FlowState) Leader() (Participant, bool) {
	return FindParticipant(s.Participants, s.Config.Leader)
}

// Contributors returns all participants except the leader, in configured order.
func (s *FlowState) Contributors() []Participant {
	out := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.InstanceID != s.Config.Leader {
			out = append(out, p)
		}
	}
	return out
}

// Finished reports whether further steps are invalid.
func (s *FlowState) Finished() bool { return s.Complete || s.Cancelled }

// Clone returns a deep copy suitable for snapshots. Participant models are
// shared.
func (s *FlowState) Clone() *FlowState {
	if s == nil {
		return nil
	}

	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	c.Contributions = copyMap(s.Contributions)
	c.LastOutputs = copyMap(s.LastOutputs)

	if s.Result != nil {
		r := *s.Result
		r.Rounds = make([]RoundResult, len(s.Result.Rounds))
		for i, round := range s.Result.Rounds {
			round.Responses = append([]ParticipantResponse(nil), round.Responses...)
			r.Rounds[i] = round
		}
		if s.Result.Final != nil {
			f := *s.Result.Final
			r.Final = &f
		}
		c.Result = &r
	}

	return &c
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
