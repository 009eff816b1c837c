package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/AntoineDubuc/conclave/model"
)

// RespondFunc computes the answer to the n-th call (1-based) of a scripted model.
type RespondFunc func(ctx context.Context, n int, req model.CompletionRequest) (string, error)

// ScriptedModel is a model.Model whose answers come from a RespondFunc. It
// records every request it receives.
type ScriptedModel struct {
	info    model.Info
	respond RespondFunc

	mu       sync.Mutex
	requests []model.CompletionRequest
}

// NewScriptedModel creates a scripted model named id.
func NewScriptedModel(id string, respond RespondFunc) *ScriptedModel {
	return &ScriptedModel{
		info:    model.Info{Name: id, Provider: "mock"},
		respond: respond,
	}
}

// Answers returns a model answering "<id> answer <n>" to its n-th call.
func Answers(id string) *ScriptedModel {
	return NewScriptedModel(id, func(_ context.Context, n int, _ model.CompletionRequest) (string, error) {
		return fmt.Sprintf("%s answer %d", id, n), nil
	})
}

// FailsOn returns a model like Answers that fails the listed calls with a
// timeout error.
func FailsOn(id string, calls ...int) *ScriptedModel {
	failing := make(map[int]bool, len(calls))
	for _, c := range calls {
		failing[c] = true
	}
	return NewScriptedModel(id, func(_ context.Context, n int, _ model.CompletionRequest) (string, error) {
		if failing[n] {
			return "", &model.Error{Provider: "mock", Kind: model.KindTimeout, Err: context.DeadlineExceeded}
		}
		return fmt.Sprintf("%s answer %d", id, n), nil
	})
}

// Hangs returns a model that honours its context and never answers.
func Hangs(id string) *ScriptedModel {
	return NewScriptedModel(id, func(ctx context.Context, _ int, _ model.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.CompletionRequest) (model.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	m.mu.Unlock()

	text, err := m.respond(ctx, n, req)
	if err != nil {
		return model.Completion{}, err
	}
	return model.Completion{Text: text, FinishReason: "stop"}, nil
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info { return m.info }

// Requests returns a snapshot of the received requests in call order.
func (m *ScriptedModel) Requests() []model.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CompletionRequest(nil), m.requests...)
}

// Prompts returns the prompts of the received requests in call order.
func (m *ScriptedModel) Prompts() []string {
	reqs := m.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Prompt
	}
	return out
}

// CallCount returns the number of calls received.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
