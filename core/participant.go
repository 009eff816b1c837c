package core

import (
	"fmt"
	"strings"

	"github.com/AntoineDubuc/conclave/model"
)

// ProviderKind names the vendor family behind a participant.
type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderGrok      ProviderKind = "grok"
	ProviderGemini    ProviderKind = "gemini"
	ProviderMock      ProviderKind = "mock"
)

// Participant is one configured model endpoint with a unique identity
// within a run.
type Participant struct {
	// InstanceID is unique within a run and stable across rounds.
	InstanceID string
	// DisplayName labels the participant's output in peer prompts.
	DisplayName  string
	ProviderKind ProviderKind
	// SystemPrompt overrides the flow system prompt for this participant.
	SystemPrompt string
	Model        model.Model
}

// Name returns the display name, falling back to the instance ID.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.InstanceID
}

// ValidateParticipants reports configuration errors in a participant set:
// an empty set, empty or duplicate instance IDs and missing models.
func ValidateParticipants(participants []Participant) error {
	if len(participants) == 0 {
		return ErrNoParticipants
	}

	seen := make(map[string]struct{}, len(participants))
	for i, p := range participants {
		if p.InstanceID == "" {
			return fmt.Errorf("%w: participant %d has an empty instance id", ErrInvalidConfig, i)
		}
		if !ValidInstanceID(p.InstanceID) {
			return fmt.Errorf("%w: participant instance id %q contains a path separator", ErrInvalidConfig, p.InstanceID)
		}
		if _, dup := seen[p.InstanceID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateParticipant, p.InstanceID)
		}
		seen[p.InstanceID] = struct{}{}
		if p.Model == nil {
			return fmt.Errorf("%w: participant %q has no model", ErrInvalidConfig, p.InstanceID)
		}
	}

	return nil
}

// FindParticipant returns the participant with the given instance ID.
func FindParticipant(participants []Participant, instanceID string) (Participant, bool) {
	for _, p := range participants {
		if p.InstanceID == instanceID {
			return p, true
		}
	}
	return Participant{}, false
}

// ValidInstanceID reports whether id is non-empty and safe to embed in an
// artifact file name.
func ValidInstanceID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`+"\x00")
}

// SanitizeID derives a filesystem-safe instance ID from a display name.
func SanitizeID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
