package core

import (
	"fmt"
	"strings"
	"time"
)

// Topology is the collaboration pattern of a flow.
type Topology string

const (
	// TopologyRoundRobin refines peer-equal outputs over several rounds.
	TopologyRoundRobin Topology = "round_robin"
	// TopologyHubAndSpoke alternates leader synthesis and contributor responses.
	TopologyHubAndSpoke Topology = "hub_and_spoke"
)

// ParseTopology accepts the canonical names plus the "basic"/"leading"
// aliases used by flow definition files.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "round_robin", "round-robin", "basic", "":
		return TopologyRoundRobin, nil
	case "hub_and_spoke", "hub-and-spoke", "leading":
		return TopologyHubAndSpoke, nil
	default:
		return "", fmt.Errorf("%w: unknown topology %q", ErrInvalidConfig, s)
	}
}

// Templates are the per-flow prompt templates. Empty fields fall back to
// built-in defaults.
type Templates struct {
	Round1          string `yaml:"round_1,omitempty"`
	Refinement      string `yaml:"refinement,omitempty"`
	LeaderSynthesis string `yaml:"leader_synthesis,omitempty"`
}

// FlowConfig is read-only during a run.
type FlowConfig struct {
	Name        string
	Description string
	Topology    Topology
	MaxRounds   int
	// Leader is the instance ID of the hub-and-spoke leader.
	Leader       string
	Templates    Templates
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	// CallTimeout caps each participant call.
	CallTimeout time.Duration
}

const (
	DefaultMaxRounds   = 2
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	DefaultCallTimeout = 120 * time.Second
)

// NewFlowConfig returns a round-robin configuration with default settings.
func NewFlowConfig(name string, optFns ...func(c *FlowConfig)) FlowConfig {
	cfg := FlowConfig{
		Name:        name,
		Topology:    TopologyRoundRobin,
		MaxRounds:   DefaultMaxRounds,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		CallTimeout: DefaultCallTimeout,
	}
	for _, fn := range optFns {
		fn(&cfg)
	}
	return cfg
}

// WithDefaults fills zero-valued tuning fields.
func (c FlowConfig) WithDefaults() FlowConfig {
	if c.Topology == "" {
		c.Topology = TopologyRoundRobin
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Validate checks the configuration against a participant set.
func (c FlowConfig) Validate(participants []Participant) error {
	if err := ValidateParticipants(participants); err != nil {
		return err
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("%w: max rounds must be at least 1, got %d", ErrInvalidConfig, c.MaxRounds)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: negative temperature %v", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: negative max tokens %d", ErrInvalidConfig, c.MaxTokens)
	}

	switch c.Topology {
	case TopologyRoundRobin:
		return nil
	case TopologyHubAndSpoke:
		if c.Leader == "" {
			return fmt.Errorf("%w: no leader configured", ErrUnknownLeader)
		}
		if _, ok := FindParticipant(participants, c.Leader); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLeader, c.Leader)
		}
		if len(participants) < 2 {
			return ErrNoContributors
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown topology %q", ErrInvalidConfig, c.Topology)
	}
}
