package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineDubuc/conclave/artifact"
	"github.com/AntoineDubuc/conclave/artifact/sqlite"
	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/logging"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONCLAVE_CONFIG", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "XAI_API_KEY", "GEMINI_API_KEY",
		"CONCLAVE_OUTPUT_DIR", "CONCLAVE_RECORDER", "CONCLAVE_SQLITE_PATH", "CONCLAVE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, []string{"anthropic", "openai", "grok"}, cfg.Active)
	assert.Equal(t, []string{"audit", "basic-ideator", "leading-ideator"}, cfg.FlowNames())
	assert.Equal(t, GrokBaseURL, cfg.Participants["grok"].BaseURL)
	assert.Equal(t, RecorderDir, cfg.Output.Recorder)
	assert.NoError(t, cfg.Validate())

	fc, err := cfg.FlowConfig("leading-ideator")
	require.NoError(t, err)
	assert.Equal(t, core.TopologyHubAndSpoke, fc.Topology)
	assert.Equal(t, "anthropic", fc.Leader)
	assert.Equal(t, 4, fc.MaxRounds)
	assert.Equal(t, core.DefaultTemperature, fc.Temperature)
	assert.Equal(t, core.DefaultCallTimeout, fc.CallTimeout)
	assert.Contains(t, fc.Templates.LeaderSynthesis, "lead architect")

	fc, err = cfg.FlowConfig("basic-ideator")
	require.NoError(t, err)
	assert.Equal(t, core.TopologyRoundRobin, fc.Topology)
	assert.Equal(t, "Basic Ideator", fc.Name)
}

func TestLoadMissingFileUsesDefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONCLAVE_CONFIG", "/nonexistent/conclave.yaml")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("XAI_API_KEY", "xai-key")
	t.Setenv("CONCLAVE_OUTPUT_DIR", "/tmp/out")
	t.Setenv("CONCLAVE_RECORDER", "memory")
	t.Setenv("CONCLAVE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-ant", cfg.Keys.Anthropic)
	assert.Equal(t, "xai-key", cfg.Keys.XAI)
	assert.Empty(t, cfg.Keys.OpenAI)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, RecorderMemory, cfg.Output.Recorder)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Flows, 3)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_CONCLAVE_KEY", "expanded-key")

	path := writeConfig(t, `
active: [alpha, beta]
api_keys:
  openai: ${TEST_CONCLAVE_KEY}
participants:
  alpha:
    provider: mock
    display_name: Alpha
  beta:
    provider: mock
    system_prompt: Be terse.
flows:
  review:
    name: Review
    topology: leading
    leader: alpha
    max_rounds: 3
    temperature: 0
    call_timeout: 45s
    prompts:
      round_1: "Round {{.Round}} for {{.Participant}}"
output:
  recorder: none
log:
  level: warn
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "expanded-key", cfg.Keys.OpenAI)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Active)

	// File entries merge with the built-in ones.
	assert.Contains(t, cfg.Participants, "anthropic")
	assert.Contains(t, cfg.Flows, "basic-ideator")

	fc, err := cfg.FlowConfig("review")
	require.NoError(t, err)
	assert.Equal(t, "Review", fc.Name)
	assert.Equal(t, core.TopologyHubAndSpoke, fc.Topology)
	assert.Equal(t, "alpha", fc.Leader)
	assert.Equal(t, 3, fc.MaxRounds)
	assert.Zero(t, fc.Temperature)
	assert.Equal(t, 45*time.Second, fc.CallTimeout)
	assert.Equal(t, core.DefaultMaxTokens, fc.MaxTokens)
	assert.Equal(t, "Round {{.Round}} for {{.Participant}}", fc.Templates.Round1)

	ids, err := cfg.FlowParticipants("review")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)

	ps, err := cfg.BuildParticipants(ids)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "Alpha", ps[0].Name())
	assert.Equal(t, "beta", ps[1].Name())
	assert.Equal(t, "Be terse.", ps[1].SystemPrompt)
	assert.NoError(t, fc.Validate(ps))
}

func TestLoadMergesBuiltInEntries(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `
participants:
  anthropic:
    api_key: sk-test
  grok:
flows:
  leading-ideator:
    max_rounds: 6
    prompts:
      round_1: "Custom opener"
`))
	require.NoError(t, err)

	anthropic := cfg.Participants["anthropic"]
	assert.Equal(t, core.ProviderAnthropic, anthropic.Provider)
	assert.Equal(t, "claude-opus-4-5-20251101", anthropic.Model)
	assert.Equal(t, "Claude", anthropic.DisplayName)
	assert.Equal(t, "sk-test", anthropic.APIKey)
	assert.Equal(t, defaults().Participants["grok"], cfg.Participants["grok"])

	p, err := cfg.BuildParticipant("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "Claude", p.Name())

	fc, err := cfg.FlowConfig("leading-ideator")
	require.NoError(t, err)
	assert.Equal(t, "Leading Ideator", fc.Name)
	assert.Equal(t, core.TopologyHubAndSpoke, fc.Topology)
	assert.Equal(t, "anthropic", fc.Leader)
	assert.Equal(t, 6, fc.MaxRounds)
	assert.Equal(t, "Custom opener", fc.Templates.Round1)
	assert.Equal(t, leadingSynthesis, fc.Templates.LeaderSynthesis)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown topology", "flows:\n  x:\n    topology: star\n"},
		{"unknown flow participant", "flows:\n  x:\n    participants: [ghost]\n"},
		{"unknown active participant", "active: [ghost]\n"},
		{"unknown recorder", "output:\n  recorder: s3\n"},
		{"unknown provider", "participants:\n  x:\n    model: m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}

	_, err := Load(writeConfig(t, "flows: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestFlowLookupErrors(t *testing.T) {
	cfg := Default()

	_, err := cfg.FlowConfig("missing")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = cfg.FlowParticipants("missing")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	ids, err := cfg.FlowParticipants("audit")
	require.NoError(t, err)
	assert.Equal(t, cfg.Active, ids)
}

func TestBuildParticipants(t *testing.T) {
	cfg := Default()

	_, err := cfg.BuildParticipants([]string{"anthropic"})
	assert.ErrorIs(t, err, core.ErrInvalidConfig, "missing API key")

	_, err = cfg.BuildParticipants([]string{"nobody"})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg.Keys = APIKeys{Anthropic: "a", OpenAI: "o", XAI: "x", Gemini: "g"}
	cfg.Participants["paced"] = ParticipantConfig{Provider: core.ProviderMock, RequestsPerMinute: 60}
	cfg.Participants["odd"] = ParticipantConfig{Provider: "carrier-pigeon"}

	ps, err := cfg.BuildParticipants([]string{"anthropic", "openai", "grok", "gemini", "paced"})
	require.NoError(t, err)

	providers := make([]string, 0, len(ps))
	for _, p := range ps {
		providers = append(providers, p.Model.Info().Provider)
	}
	assert.Equal(t, []string{"anthropic", "openai", "grok", "gemini", "mock"}, providers)
	assert.Equal(t, "grok-4", ps[2].Model.Info().Name)
	assert.Equal(t, core.ProviderGrok, ps[2].ProviderKind)
	assert.Equal(t, "Claude", ps[0].Name())

	_, err = cfg.BuildParticipant("odd")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRecorder(t *testing.T) {
	cfg := Default()

	cfg.Output.Recorder = RecorderMemory
	rec, err := cfg.Recorder()
	require.NoError(t, err)
	assert.IsType(t, &artifact.InMemoryRecorder{}, rec)

	cfg.Output.Recorder = RecorderNone
	rec, err = cfg.Recorder()
	require.NoError(t, err)
	assert.IsType(t, core.NopRecorder{}, rec)

	cfg.Output.Recorder = RecorderDir
	cfg.Output.Dir = t.TempDir()
	rec, err = cfg.Recorder()
	require.NoError(t, err)
	assert.IsType(t, &artifact.DirRecorder{}, rec)

	cfg.Output.Recorder = RecorderSQLite
	cfg.Output.SQLitePath = filepath.Join(t.TempDir(), "runs.db")
	rec, err = cfg.Recorder()
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Recorder{}, rec)
	closer, ok := rec.(io.Closer)
	require.True(t, ok)
	assert.NoError(t, closer.Close())

	cfg.Output.Recorder = "tape"
	_, err = cfg.Recorder()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestLogger(t *testing.T) {
	cfg := Default()

	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.IsType(t, &logging.FlowLogger{}, l)

	cfg.Log.Format = "zap"
	l, err = cfg.Logger()
	require.NoError(t, err)
	assert.IsType(t, &logging.ZapAdapter{}, l)

	cfg.Log.Format = "xml"
	_, err = cfg.Logger()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg.Log.Format = "text"
	cfg.Log.Level = "loud"
	_, err = cfg.Logger()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
