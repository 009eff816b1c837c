package flow

import (
	"fmt"
	"strings"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/internal/util"
)

// Built-in templates used when a flow leaves a template empty.
const (
	DefaultRound1Template          = "Please respond to the following task:"
	DefaultRefinementTemplate      = "Review peer responses and refine your answer:"
	DefaultContributorTemplate     = "Review the leader's synthesis and provide your refined perspective:"
	DefaultLeaderSynthesisTemplate = "Synthesize all contributions into a unified response:"
	DefaultFinalSynthesisTemplate  = "Provide the final, comprehensive synthesis:"

	noneSentinel     = "(none)"
	finalInstruction = "This is the final round. Please provide a comprehensive synthesis that:"
)

// DefaultSystemPrompt asks participants for well-structured Markdown.
const DefaultSystemPrompt = `You are a collaborative AI participant in a multi-model discussion.

## Output Format
Structure your response in well-formatted Markdown with:
- Clear headings (##, ###) for major sections
- Bullet points for lists
- **Bold** for key terms or emphasis
- Code blocks with language tags if showing code or technical content
- Numbered lists for sequential steps

Be thorough, specific, and well-organized in your response.`

// Tag selects the prompt shape.
type Tag struct {
	Topology core.Topology
	Phase    core.Phase
}

// Labelled is one participant output labelled by display name.
type Labelled struct {
	Name    string
	Content string
}

// PromptInput carries everything a prompt may draw on. Empty Previous or
// Synthesis fields render as "(none)".
type PromptInput struct {
	Task        string
	Round       int
	Participant string
	// Previous is the participant's own last successful output.
	Previous string
	// Peers are the other participants' outputs from the previous round.
	Peers []Labelled
	// Synthesis is the leader's latest synthesis.
	Synthesis string
	// Contributions feed leader and final synthesis prompts.
	Contributions []Labelled
}

// Composer builds per-participant prompt text for one flow configuration.
type Composer struct {
	templates    core.Templates
	systemPrompt string
	maxRounds    int
}

// NewComposer returns a composer for cfg.
func NewComposer(cfg core.FlowConfig) *Composer {
	return &Composer{
		templates:    cfg.Templates,
		systemPrompt: cfg.SystemPrompt,
		maxRounds:    cfg.MaxRounds,
	}
}

// Compose returns the prompt for tag. Unknown phases are treated as round 1.
func (c *Composer) Compose(tag Tag, in PromptInput) string {
	switch tag.Phase {
	case core.PhaseRefinement:
		if tag.Topology == core.TopologyHubAndSpoke {
			return c.contributorResponse(in)
		}
		return c.refinement(in)
	case core.PhaseLeaderSynthesis:
		return c.leaderSynthesis(in)
	case core.PhaseContributorResponse:
		return c.contributorResponse(in)
	case core.PhaseFinalSynthesis:
		return c.finalSynthesis(in)
	default:
		return c.render(c.templates.Round1, DefaultRound1Template, in) + "\n\n" + in.Task
	}
}

// SystemPrompt resolves the system prompt for p: the participant override,
// then the flow system prompt, then the built-in default.
func (c *Composer) SystemPrompt(p core.Participant) string {
	switch {
	case strings.TrimSpace(p.SystemPrompt) != "":
		return p.SystemPrompt
	case strings.TrimSpace(c.systemPrompt) != "":
		return c.systemPrompt
	default:
		return DefaultSystemPrompt
	}
}

func (c *Composer) refinement(in PromptInput) string {
	return fmt.Sprintf(`%s

**Your previous response:**
%s

**Peer responses:**
%s

**Task reminder:**
%s

Please provide your refined response:`,
		c.render(c.templates.Refinement, DefaultRefinementTemplate, in),
		orNone(in.Previous),
		joinLabelled(in.Peers),
		in.Task)
}

func (c *Composer) leaderSynthesis(in PromptInput) string {
	return fmt.Sprintf(`%s

**Contributions:**
%s

**Task:**
%s

Please provide your synthesis:`,
		c.render(c.templates.LeaderSynthesis, DefaultLeaderSynthesisTemplate, in),
		joinLabelled(in.Contributions),
		in.Task)
}

func (c *Composer) contributorResponse(in PromptInput) string {
	return fmt.Sprintf(`%s

**Leader's synthesis:**
%s

**Your previous response:**
%s

**Task:**
%s

Please provide your refined perspective:`,
		c.render(c.templates.Refinement, DefaultContributorTemplate, in),
		orNone(in.Synthesis),
		orNone(in.Previous),
		in.Task)
}

func (c *Composer) finalSynthesis(in PromptInput) string {
	return fmt.Sprintf(`%s

%s
1. Integrates the best insights from all contributors
2. Resolves any conflicting perspectives
3. Provides a clear, actionable conclusion

**All contributions:**
%s

**Original task:**
%s

**Your final synthesis:**`,
		c.render(c.templates.LeaderSynthesis, DefaultFinalSynthesisTemplate, in),
		finalInstruction,
		joinLabelled(in.Contributions),
		in.Task)
}

// render expands a configured template, or the fallback when it is empty.
func (c *Composer) render(tmpl, fallback string, in PromptInput) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = fallback
	}
	return util.RenderOrRaw(tmpl, map[string]any{
		"Task":        in.Task,
		"Round":       in.Round,
		"MaxRounds":   c.maxRounds,
		"Participant": in.Participant,
	})
}

func orNone(s string) string {
	if s == "" {
		return noneSentinel
	}
	return s
}

func joinLabelled(items []Labelled) string {
	if len(items) == 0 {
		return noneSentinel
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("**%s:**\n%s", it.Name, it.Content))
	}
	return strings.Join(parts, "\n\n")
}

// labelled returns outputs in configured participant order, skipping exclude
// and participants without output.
func labelled(participants []core.Participant, outputs map[string]string, exclude string) []Labelled {
	out := make([]Labelled, 0, len(outputs))
	for _, p := range participants {
		if p.InstanceID == exclude {
			continue
		}
		if content, ok := outputs[p.InstanceID]; ok {
			out = append(out, Labelled{Name: p.Name(), Content: content})
		}
	}
	return out
}
