package core

import "errors"

// Configuration errors. They are reported before any participant call is
// issued and are fatal to the run.
var (
	// ErrNoParticipants is returned when a flow is started without participants.
	ErrNoParticipants = errors.New("no participants configured")
	// ErrDuplicateParticipant is returned when two participants share an instance ID.
	ErrDuplicateParticipant = errors.New("duplicate participant instance id")
	// ErrUnknownLeader is returned when the hub-and-spoke leader does not match a participant.
	ErrUnknownLeader = errors.New("leader does not match any participant")
	// ErrNoContributors is returned when hub-and-spoke has nobody besides the leader.
	ErrNoContributors = errors.New("hub-and-spoke requires at least one contributor")
	// ErrInvalidConfig is returned for any other malformed flow configuration.
	ErrInvalidConfig = errors.New("invalid flow configuration")
)

// ErrFlowFinished is returned when stepping a flow that is already complete or cancelled.
var ErrFlowFinished = errors.New("flow already finished")
