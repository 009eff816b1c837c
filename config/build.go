package config

import (
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/AntoineDubuc/conclave/artifact"
	"github.com/AntoineDubuc/conclave/artifact/sqlite"
	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/model"
	"github.com/AntoineDubuc/conclave/model/anthropic"
	"github.com/AntoineDubuc/conclave/model/openai"
)

// BuildParticipants builds the participants with the given IDs, in order.
func (c *Config) BuildParticipants(ids []string) ([]core.Participant, error) {
	out := make([]core.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := c.BuildParticipant(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// BuildParticipant builds one participant and its model adapter.
func (c *Config) BuildParticipant(id string) (core.Participant, error) {
	pc, ok := c.Participants[id]
	if !ok {
		return core.Participant{}, fmt.Errorf("%w: unknown participant %q", core.ErrInvalidConfig, id)
	}

	m, err := c.newModel(id, pc)
	if err != nil {
		return core.Participant{}, err
	}
	if pc.RequestsPerMinute > 0 {
		m = model.NewRateLimited(m, model.PerMinute(pc.RequestsPerMinute))
	}

	return core.Participant{
		InstanceID:   id,
		DisplayName:  pc.DisplayName,
		ProviderKind: pc.Provider,
		SystemPrompt: pc.SystemPrompt,
		Model:        m,
	}, nil
}

func (c *Config) newModel(id string, pc ParticipantConfig) (model.Model, error) {
	switch pc.Provider {
	case core.ProviderAnthropic:
		key, err := requireKey(id, pc.APIKey, c.Keys.Anthropic)
		if err != nil {
			return nil, err
		}
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = key
			o.BaseURL = pc.BaseURL
			if pc.Model != "" {
				o.Model = anthropicsdk.Model(pc.Model)
			}
			if pc.MaxRetries > 0 {
				o.MaxRetries = pc.MaxRetries
			}
		}), nil

	case core.ProviderOpenAI, core.ProviderGrok, core.ProviderGemini:
		fallback, baseURL := c.Keys.OpenAI, pc.BaseURL
		switch pc.Provider {
		case core.ProviderGrok:
			fallback = c.Keys.XAI
			if baseURL == "" {
				baseURL = GrokBaseURL
			}
		case core.ProviderGemini:
			fallback = c.Keys.Gemini
			if baseURL == "" {
				baseURL = GeminiBaseURL
			}
		}
		key, err := requireKey(id, pc.APIKey, fallback)
		if err != nil {
			return nil, err
		}
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = key
			o.BaseURL = baseURL
			o.Provider = string(pc.Provider)
			if pc.Model != "" {
				o.Model = pc.Model
			}
			if pc.MaxRetries > 0 {
				o.MaxRetries = pc.MaxRetries
			}
		}), nil

	case core.ProviderMock:
		return model.NewMockModel(id, string(core.ProviderMock)), nil

	default:
		return nil, fmt.Errorf("%w: participant %q has unknown provider %q", core.ErrInvalidConfig, id, pc.Provider)
	}
}

func requireKey(id, own, shared string) (string, error) {
	if own != "" {
		return own, nil
	}
	if shared != "" {
		return shared, nil
	}
	return "", fmt.Errorf("%w: no API key for participant %q", core.ErrInvalidConfig, id)
}

// Recorder builds the configured run recorder. A SQLite recorder must be
// closed by the caller; it implements io.Closer.
func (c *Config) Recorder() (core.Recorder, error) {
	switch strings.ToLower(c.Output.Recorder) {
	case "", RecorderDir:
		return artifact.NewDirRecorder(c.Output.Dir), nil
	case RecorderMemory:
		return artifact.NewInMemoryRecorder(), nil
	case RecorderSQLite:
		rec, err := sqlite.Open(c.Output.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite recorder: %w", err)
		}
		return rec, nil
	case RecorderNone:
		return core.NopRecorder{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown recorder %q", core.ErrInvalidConfig, c.Output.Recorder)
	}
}

// Logger builds the configured logger.
func (c *Config) Logger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidConfig, err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "zap":
		return logging.NewZapProduction(level)
	case "", "text", "json":
		l := logging.NewSlogLogger(level, strings.ToLower(c.Log.Format), c.Log.AddSource)
		return l.WithComponent("conclave"), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", core.ErrInvalidConfig, c.Log.Format)
	}
}
