package core

import "time"

// ParticipantResponse is the outcome of one participant call. Exactly one of
// Content and Err is meaningful.
type ParticipantResponse struct {
	InstanceID  string
	DisplayName string
	Content     string
	Err         error
	Round       int
	Phase       Phase
	Duration    time.Duration
	// Edited marks a leader synthesis replaced during review.
	Edited bool
}

// OK reports whether the call succeeded.
func (r ParticipantResponse) OK() bool { return r.Err == nil }

// RoundResult holds the responses of one round in completion order.
type RoundResult struct {
	Number    int
	Phase     Phase
	Responses []ParticipantResponse
}

// Successes returns instanceID -> content for the successful responses.
func (r RoundResult) Successes() map[string]string {
	out := make(map[string]string, len(r.Responses))
	for _, resp := range r.Responses {
		if resp.OK() {
			out[resp.InstanceID] = resp.Content
		}
	}
	return out
}

// Failures returns the failed responses.
func (r RoundResult) Failures() []ParticipantResponse {
	var out []ParticipantResponse
	for _, resp := range r.Responses {
		if !resp.OK() {
			out = append(out, resp)
		}
	}
	return out
}

// Response returns the response of the given participant.
func (r RoundResult) Response(instanceID string) (ParticipantResponse, bool) {
	for _, resp := range r.Responses {
		if resp.InstanceID == instanceID {
			return resp, true
		}
	}
	return ParticipantResponse{}, false
}

// Outcome is the terminal state of a flow run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// FlowResult is the aggregated outcome of a run.
type FlowResult struct {
	RunID    string
	FlowName string
	Topology Topology
	Outcome  Outcome
	Rounds   []RoundResult
	// Final is the leader's final synthesis; hub-and-spoke only.
	Final *ParticipantResponse
	// LeaderID is set for hub-and-spoke runs.
	LeaderID string
	// Location is where the recorder stored the run's artifacts.
	Location string
}

// Cancelled reports whether the run was aborted.
func (r *FlowResult) Cancelled() bool { return r.Outcome == OutcomeCancelled }

// FinalSynthesis returns the final synthesis text, or "" when absent or failed.
func (r *FlowResult) FinalSynthesis() string {
	if r.Final == nil || r.Final.Err != nil {
		return ""
	}
	return r.Final.Content
}

// LastRound returns the most recent round, if any.
func (r *FlowResult) LastRound() (RoundResult, bool) {
	if len(r.Rounds) == 0 {
		return RoundResult{}, false
	}
	return r.Rounds[len(r.Rounds)-1], true
}
