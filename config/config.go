// Package config loads conclave settings from YAML and builds participants,
// flow configurations, recorders and loggers from them.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AntoineDubuc/conclave/core"
)

const (
	// DefaultPath is read when neither an explicit path nor CONCLAVE_CONFIG is set.
	DefaultPath = "conclave.yaml"

	GrokBaseURL   = "https://api.x.ai/v1"
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// Recorder kinds accepted in output.recorder.
const (
	RecorderDir    = "dir"
	RecorderMemory = "memory"
	RecorderSQLite = "sqlite"
	RecorderNone   = "none"
)

type Config struct {
	// Active lists the participants used by flows that do not name their own.
	Active       []string                     `yaml:"active"`
	Participants map[string]ParticipantConfig `yaml:"participants"`
	Flows        map[string]FlowDefinition    `yaml:"flows"`
	Keys         APIKeys                      `yaml:"api_keys"`
	Output       OutputConfig                 `yaml:"output"`
	Log          LogConfig                    `yaml:"log"`
}

type ParticipantConfig struct {
	Provider     core.ProviderKind `yaml:"provider"`
	Model        string            `yaml:"model"`
	DisplayName  string            `yaml:"display_name"`
	SystemPrompt string            `yaml:"system_prompt"`
	BaseURL      string            `yaml:"base_url"`
	// APIKey overrides the provider key from api_keys.
	APIKey            string `yaml:"api_key"`
	MaxRetries        int    `yaml:"max_retries"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type FlowDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Topology accepts round_robin, hub_and_spoke and the basic/leading aliases.
	Topology     string         `yaml:"topology"`
	MaxRounds    int            `yaml:"max_rounds"`
	Leader       string         `yaml:"leader"`
	Participants []string       `yaml:"participants"`
	Prompts      core.Templates `yaml:"prompts"`
	SystemPrompt string         `yaml:"system_prompt"`
	Temperature  *float64       `yaml:"temperature"`
	MaxTokens    int            `yaml:"max_tokens"`
	CallTimeout  time.Duration  `yaml:"call_timeout"`
}

type APIKeys struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	XAI       string `yaml:"xai"`
	Gemini    string `yaml:"gemini"`
}

type OutputConfig struct {
	Recorder   string `yaml:"recorder"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is text, json or zap.
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

const (
	ideatorRound1 = "You are an expert architect. Analyze the user's request and provide a comprehensive, actionable plan. Be creative but grounded."

	ideatorRefinement = "You are reviewing the work of your peers. Attached are their proposals, along with your original one. " +
		"Critique their approaches, identify what they did better than you, and synthesize a new, superior version (vNext) " +
		"of your plan that incorporates their best ideas while maintaining your unique strengths."

	leadingRefinement = "The lead architect has synthesized a unified plan from all contributions. Review their synthesis below. " +
		"Identify gaps, improvements, or alternative approaches they may have missed. Provide your refined perspective."

	leadingSynthesis = "You are the lead architect synthesizing input from your team. Review all contributions below. " +
		"Extract the best ideas from each, resolve conflicts, and create a unified, superior plan that represents the best " +
		"thinking of the group. Be decisive but acknowledge strong alternative viewpoints."

	auditRound1 = "You are a senior security engineer. Analyze the attached code for vulnerabilities, logical errors, and code smell. Be ruthless."

	auditRefinement = "Review the findings of the other auditors. Did you miss anything they found? Verify their claims. " +
		"Output a finalized, unified list of critical issues."
)

func defaults() Config {
	return Config{
		Active: []string{"anthropic", "openai", "grok"},
		Participants: map[string]ParticipantConfig{
			"anthropic": {Provider: core.ProviderAnthropic, Model: "claude-opus-4-5-20251101", DisplayName: "Claude"},
			"openai":    {Provider: core.ProviderOpenAI, Model: "gpt-5.2", DisplayName: "GPT"},
			"grok":      {Provider: core.ProviderGrok, Model: "grok-4", DisplayName: "Grok", BaseURL: GrokBaseURL},
			"gemini":    {Provider: core.ProviderGemini, Model: "gemini-2.0-flash", DisplayName: "Gemini", BaseURL: GeminiBaseURL},
		},
		Flows: map[string]FlowDefinition{
			"basic-ideator": {
				Name:        "Basic Ideator",
				Description: "All models brainstorm independently, then everyone sees everyone's work and refines.",
				Topology:    string(core.TopologyRoundRobin),
				MaxRounds:   3,
				Prompts:     core.Templates{Round1: ideatorRound1, Refinement: ideatorRefinement},
			},
			"leading-ideator": {
				Name:        "Leading Ideator",
				Description: "One model leads and synthesizes. Others contribute ideas, the leader distills them into a unified vision.",
				Topology:    string(core.TopologyHubAndSpoke),
				MaxRounds:   4,
				Leader:      "anthropic",
				Prompts:     core.Templates{Round1: ideatorRound1, Refinement: leadingRefinement, LeaderSynthesis: leadingSynthesis},
			},
			"audit": {
				Name:        "Code Audit",
				Description: "Multiple security experts analyze code, then cross-review findings.",
				Topology:    string(core.TopologyRoundRobin),
				MaxRounds:   2,
				Prompts:     core.Templates{Round1: auditRound1, Refinement: auditRefinement},
			},
		},
		Output: OutputConfig{
			Recorder:   RecorderDir,
			Dir:        "conclave_output",
			SQLitePath: "data/conclave.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	cfg := defaults()
	return &cfg
}

// Load reads the configuration at path, or CONCLAVE_CONFIG, or DefaultPath.
// A missing file yields the defaults. ${VAR} references are expanded before
// parsing and environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONCLAVE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := Parse(data, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse expands environment references in data and decodes it over cfg.
// Participants and flows already present in cfg are merged field by field
// with the file's entries of the same name.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]

	baseParticipants := maps.Clone(cfg.Participants)
	baseFlows := maps.Clone(cfg.Flows)

	if err := root.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	// Decode zeroes map values, so known entries are decoded again on top
	// of their previous value.
	if err := mergeEntries(root, "participants", baseParticipants, cfg.Participants); err != nil {
		return err
	}
	return mergeEntries(root, "flows", baseFlows, cfg.Flows)
}

func mergeEntries[T any](root *yaml.Node, key string, base, dst map[string]T) error {
	node := mappingValue(root, key)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		entry, ok := base[name]
		if !ok {
			continue
		}
		if value.Tag != "!!null" {
			if err := value.Decode(&entry); err != nil {
				return fmt.Errorf("parse config: %s.%s: %w", key, name, err)
			}
		}
		dst[name] = entry
	}
	return nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
	if v := os.Getenv("XAI_API_KEY"); v != "" {
		cfg.Keys.XAI = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Keys.Gemini = v
	}
	if v := os.Getenv("CONCLAVE_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("CONCLAVE_RECORDER"); v != "" {
		cfg.Output.Recorder = v
	}
	if v := os.Getenv("CONCLAVE_SQLITE_PATH"); v != "" {
		cfg.Output.SQLitePath = v
	}
	if v := os.Getenv("CONCLAVE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks cross references between flows and participants.
func (c *Config) Validate() error {
	for _, id := range slices.Sorted(maps.Keys(c.Participants)) {
		switch p := c.Participants[id].Provider; p {
		case core.ProviderAnthropic, core.ProviderOpenAI, core.ProviderGrok, core.ProviderGemini, core.ProviderMock:
		default:
			return fmt.Errorf("%w: participant %q has unknown provider %q", core.ErrInvalidConfig, id, p)
		}
	}

	for _, id := range c.Active {
		if _, ok := c.Participants[id]; !ok {
			return fmt.Errorf("%w: active participant %q is not defined", core.ErrInvalidConfig, id)
		}
	}

	for _, name := range c.FlowNames() {
		def := c.Flows[name]
		if _, err := core.ParseTopology(def.Topology); err != nil {
			return fmt.Errorf("flow %q: %w", name, err)
		}
		for _, id := range def.Participants {
			if _, ok := c.Participants[id]; !ok {
				return fmt.Errorf("%w: flow %q references unknown participant %q", core.ErrInvalidConfig, name, id)
			}
		}
	}

	switch strings.ToLower(c.Output.Recorder) {
	case "", RecorderDir, RecorderMemory, RecorderSQLite, RecorderNone:
	default:
		return fmt.Errorf("%w: unknown recorder %q", core.ErrInvalidConfig, c.Output.Recorder)
	}

	return nil
}

// FlowNames returns the configured flow names in sorted order.
func (c *Config) FlowNames() []string {
	names := make([]string, 0, len(c.Flows))
	for name := range c.Flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FlowConfig converts the named flow definition into an engine configuration.
func (c *Config) FlowConfig(name string) (core.FlowConfig, error) {
	def, ok := c.Flows[name]
	if !ok {
		return core.FlowConfig{}, fmt.Errorf("%w: unknown flow %q", core.ErrInvalidConfig, name)
	}

	topology, err := core.ParseTopology(def.Topology)
	if err != nil {
		return core.FlowConfig{}, fmt.Errorf("flow %q: %w", name, err)
	}

	display := def.Name
	if display == "" {
		display = name
	}

	return core.NewFlowConfig(display, func(fc *core.FlowConfig) {
		fc.Description = def.Description
		fc.Topology = topology
		fc.Leader = def.Leader
		fc.Templates = def.Prompts
		fc.SystemPrompt = def.SystemPrompt
		if def.MaxRounds != 0 {
			fc.MaxRounds = def.MaxRounds
		}
		if def.Temperature != nil {
			fc.Temperature = *def.Temperature
		}
		if def.MaxTokens != 0 {
			fc.MaxTokens = def.MaxTokens
		}
		if def.CallTimeout != 0 {
			fc.CallTimeout = def.CallTimeout
		}
	}), nil
}

// FlowParticipants returns the participant IDs of the named flow: its own
// list when set, otherwise the active list.
func (c *Config) FlowParticipants(name string) ([]string, error) {
	def, ok := c.Flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown flow %q", core.ErrInvalidConfig, name)
	}
	if len(def.Participants) > 0 {
		return append([]string(nil), def.Participants...), nil
	}
	return append([]string(nil), c.Active...), nil
}
