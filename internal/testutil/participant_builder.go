package testutil

import (
	"strings"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/model"
)

// ParticipantBuilder helps construct participants with fluent chaining for tests.
// Example:
//
//	p := NewParticipantBuilder("a").Model(Answers("a")).SystemPrompt("be brief").Build()
//
// The display name defaults to the upper-cased instance ID.
type ParticipantBuilder struct {
	p core.Participant
}

// NewParticipantBuilder creates a new builder for the given instance ID.
func NewParticipantBuilder(id string) *ParticipantBuilder {
	return &ParticipantBuilder{p: core.Participant{
		InstanceID:   id,
		DisplayName:  strings.ToUpper(id),
		ProviderKind: core.ProviderMock,
	}}
}

// DisplayName overrides the display name (chainable).
func (b *ParticipantBuilder) DisplayName(name string) *ParticipantBuilder {
	b.p.DisplayName = name
	return b
}

// SystemPrompt sets the per-participant system prompt (chainable).
func (b *ParticipantBuilder) SystemPrompt(s string) *ParticipantBuilder {
	b.p.SystemPrompt = s
	return b
}

// Model sets the participant model (chainable).
func (b *ParticipantBuilder) Model(m model.Model) *ParticipantBuilder {
	b.p.Model = m
	return b
}

// Build returns the participant.
func (b *ParticipantBuilder) Build() core.Participant {
	return b.p
}

// Participants wraps scripted models as participants named after each model.
func Participants(models ...*ScriptedModel) []core.Participant {
	out := make([]core.Participant, 0, len(models))
	for _, m := range models {
		out = append(out, NewParticipantBuilder(m.Info().Name).Model(m).Build())
	}
	return out
}

// RoundRobin returns a round-robin flow configuration.
func RoundRobin(maxRounds int) core.FlowConfig {
	return core.NewFlowConfig("test-round-robin", func(c *core.FlowConfig) {
		c.MaxRounds = maxRounds
	})
}

// HubAndSpoke returns a hub-and-spoke flow configuration led by leader.
func HubAndSpoke(leader string, maxRounds int) core.FlowConfig {
	return core.NewFlowConfig("test-hub-and-spoke", func(c *core.FlowConfig) {
		c.Topology = core.TopologyHubAndSpoke
		c.Leader = leader
		c.MaxRounds = maxRounds
	})
}
