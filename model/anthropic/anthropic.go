// Package anthropic provides a participant model backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/AntoineDubuc/conclave/model"
)

const providerName = "anthropic"

// Options configures the Anthropic model adapter (model id, API key,
// default max tokens, retries). Extend via functional options to preserve
// stability.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
	BaseURL   string
	// MaxRetries is handed to the SDK; the flow engine itself never retries.
	MaxRetries int
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:      anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:  2048,
		MaxRetries: 2,
	}
}

// NewModel creates a new Anthropic model using the official client.
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

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate sends a single-turn message and returns the concatenated text blocks.
func (m *Model) Generate(ctx context.Context, req model.CompletionRequest) (model.Completion, error) {
	params := m.buildParams(req)

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.Completion{}, classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		sb.WriteString(block.AsText().Text)
	}
	if sb.Len() == 0 {
		return model.Completion{}, &model.Error{Provider: providerName, Kind: model.KindMalformed, Err: fmt.Errorf("response contained no text blocks")}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return model.Completion{
		Text:         sb.String(),
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func (m *Model) buildParams(req model.CompletionRequest) anthropic.MessageNewParams {
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	return params
}

// classify maps SDK failures onto the model error taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.Error{Provider: providerName, Kind: model.KindFromStatus(apiErr.StatusCode), Err: err}
	}
	return model.Wrap(providerName, fmt.Errorf("anthropic api error: %w", err))
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: providerName,
	}
}
