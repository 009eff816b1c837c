// Package openai provides a participant model backed by the OpenAI Chat
// Completions API. The same adapter serves OpenAI-compatible endpoints such
// as xAI Grok when a base URL is supplied.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AntoineDubuc/conclave/model"
)

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	// Provider is the name reported in Info and errors ("openai", "grok", ...).
	Provider   string
	MaxRetries int
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 2048,
		Provider:            "openai",
		MaxRetries:          2,
	}
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate performs a non-streaming chat completion.
func (m *Model) Generate(ctx context.Context, req model.CompletionRequest) (model.Completion, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
	if err != nil {
		return model.Completion{}, m.classify(err)
	}
	if len(resp.Choices) == 0 {
		return model.Completion{}, &model.Error{Provider: m.opts.Provider, Kind: model.KindMalformed, Err: fmt.Errorf("no choices returned")}
	}

	ch0 := resp.Choices[0]
	if ch0.Message.Content == "" {
		return model.Completion{}, &model.Error{Provider: m.opts.Provider, Kind: model.KindMalformed, Err: fmt.Errorf("empty message content (finish reason %q)", ch0.FinishReason)}
	}

	return model.Completion{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildParams assembles the OpenAI request parameters.
func (m *Model) buildParams(req model.CompletionRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

func (m *Model) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.Error{Provider: m.opts.Provider, Kind: model.KindFromStatus(apiErr.StatusCode), Err: err}
	}
	return model.Wrap(m.opts.Provider, fmt.Errorf("%s api error: %w", m.opts.Provider, err))
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: m.opts.Provider,
	}
}
