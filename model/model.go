package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// CompletionRequest captures the normalized model input produced by flows.
// It is a value type; flows build one per call and never mutate it afterwards.
type CompletionRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the final text produced by a model for one request.
type Completion struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "end_turn", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "grok", "mock", etc.
}

// Model is the minimal interface a participant endpoint must satisfy.
// Implementations must honour ctx cancellation and deadlines.
type Model interface {
	Generate(ctx context.Context, req CompletionRequest) (Completion, error)

	// Info returns information about the model implementation.
	Info() Info
}

// GenerateFunc adapts a plain function to the Model interface.
type GenerateFunc func(ctx context.Context, req CompletionRequest) (Completion, error)

type funcModel struct {
	info Info
	fn   GenerateFunc
}

// NewFuncModel wraps fn as a Model reporting the given info.
func NewFuncModel(info Info, fn GenerateFunc) Model {
	return &funcModel{info: info, fn: fn}
}

func (m *funcModel) Generate(ctx context.Context, req CompletionRequest) (Completion, error) {
	return m.fn(ctx, req)
}

func (m *funcModel) Info() Info { return m.info }

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// It answers with a canned response when the prompt contains a registered
// key, otherwise with an echo of the first prompt line.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses []canned
	calls     []CompletionRequest
}

type canned struct{ match, response string }

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:     name,
			Provider: provider,
		},
	}
}

// AddResponse registers a deterministic canned completion for prompts
// containing match. Earlier registrations win when several match.
func (m *MockModel) AddResponse(match, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, canned{match: match, response: response})
}

// Calls returns a snapshot of every request received so far.
func (m *MockModel) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req CompletionRequest) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if req.Prompt == "" {
		return Completion{}, &Error{Provider: m.info.Provider, Kind: KindMalformed, Err: fmt.Errorf("no prompt provided")}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var full string
	for _, c := range m.responses {
		if strings.Contains(req.Prompt, c.match) {
			full = c.response
			break
		}
	}
	m.mu.Unlock()

	if full == "" {
		first, _, _ := strings.Cut(req.Prompt, "\n")
		full = fmt.Sprintf("Mock response from %s to: %s", m.info.Name, first)
	}
	return Completion{Text: full, FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
