// Package config loads codesmith configuration. The file is read once at
// startup and never reloaded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all codesmith configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Named model definitions referenced by phases and roles.
	Models map[string]ModelConfig `yaml:"models"`

	// Phase-based model assignment (canonical shape for the swarm path).
	Phases PhasesConfig `yaml:"phases"`

	// Simple per-purpose roles (legacy shape, kept as a migration adapter
	// for the strategy path).
	LLM RoleConfig `yaml:"llm"`

	Agent    AgentConfig    `yaml:"agent"`
	Database DatabaseConfig `yaml:"database"`
	Git      GitConfig      `yaml:"git"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ModelConfig describes a single named model endpoint.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // anthropic, openrouter, ollama, gemini, mock
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// Optional reasoning hints forwarded to providers that support them.
	ReasoningEffort string `yaml:"reasoning_effort"`
	ThinkingBudget  int    `yaml:"thinking_budget"`

	// Streaming timeouts in milliseconds. Zero selects the defaults.
	FirstTokenTimeoutMS int `yaml:"first_token_timeout_ms"`
	StallTimeoutMS      int `yaml:"stall_timeout_ms"`
}

// PhasesConfig assigns models, tools, and a prompt template to each swarm phase.
type PhasesConfig struct {
	Research     PhaseConfig `yaml:"research"`
	Deliberation PhaseConfig `yaml:"deliberation"`
	TDD          PhaseConfig `yaml:"tdd"`
}

// PhaseConfig is one swarm phase: the models it fans out to, the tools it may
// expose, and its prompt template.
type PhaseConfig struct {
	Models []string `yaml:"models"`
	Tools  []string `yaml:"tools"`
	Prompt string   `yaml:"prompt"`
}

// RoleConfig maps coarse purposes to named models (legacy shape).
type RoleConfig struct {
	Default        string `yaml:"default"`
	CodeGeneration string `yaml:"code_generation"`
	Planning       string `yaml:"planning"`
}

// AgentConfig holds orchestrator settings.
type AgentConfig struct {
	WorkingDir    string  `yaml:"working_dir"`
	DataDir       string  `yaml:"data_dir"`
	MaxMemoryMB   float64 `yaml:"max_memory_mb"`
	MaxCPUPercent float64 `yaml:"max_cpu_percent"`
	MaxDiskMB     float64 `yaml:"max_disk_mb"` // 0 disables the disk limit

	// Back-off before retrying an iteration when resources are exceeded.
	ResourceBackoff time.Duration `yaml:"resource_backoff"`

	// Coarse wall-clock timeout wrapping database operations in the loop.
	DatabaseTimeout time.Duration `yaml:"database_timeout"`

	// Strict permission enforcement; permissive by default.
	StrictPermissions bool `yaml:"strict_permissions"`
}

// DatabaseConfig selects the document database. Empty path means the
// file-backed persistence is used alone.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GitConfig holds git workspace settings.
type GitConfig struct {
	BranchPrefix string `yaml:"branch_prefix"`
	AuthorName   string `yaml:"author_name"`
	AuthorEmail  string `yaml:"author_email"`
}

// LoggingConfig controls both categorized file logging and LLM transcripts.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`

	LLMLogDir          string `yaml:"llm_log_dir"`
	LLMLogsToKeep      int    `yaml:"llm_logs_to_keep"`
	IncludeFullPrompts bool   `yaml:"include_full_prompts"`
	ConsoleLogging     bool   `yaml:"console_logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codesmith",
		Version: "0.3.0",

		Models: map[string]ModelConfig{
			"claude": {
				Provider:    "anthropic",
				Model:       "claude-sonnet-4-5",
				BaseURL:     "https://api.anthropic.com/v1",
				MaxTokens:   8192,
				Temperature: 0.2,
			},
			"router": {
				Provider:    "openrouter",
				Model:       "openai/gpt-4o",
				BaseURL:     "https://openrouter.ai/api/v1",
				MaxTokens:   8192,
				Temperature: 0.2,
			},
			"local": {
				Provider:    "ollama",
				Model:       "qwen2.5-coder",
				BaseURL:     "http://localhost:11434",
				MaxTokens:   4096,
				Temperature: 0.2,
			},
		},

		Phases: PhasesConfig{
			Research: PhaseConfig{
				Models: []string{"claude", "router"},
				Tools:  []string{"read", "grep", "glob", "find_tests", "git_history", "web_search", "web_fetch"},
				Prompt: defaultResearchPrompt,
			},
			Deliberation: PhaseConfig{
				Models: []string{"claude", "router"},
				Tools:  []string{},
				Prompt: defaultDeliberationPrompt,
			},
			TDD: PhaseConfig{
				Models: []string{"claude"},
				Tools:  []string{"read", "grep", "write", "edit", "bash", "compile_check", "run_tests", "todo_write"},
				Prompt: defaultTDDPrompt,
			},
		},

		LLM: RoleConfig{
			Default:        "claude",
			CodeGeneration: "claude",
			Planning:       "claude",
		},

		Agent: AgentConfig{
			WorkingDir:      "./workspace",
			DataDir:         "./data",
			MaxMemoryMB:     2048,
			MaxCPUPercent:   90,
			ResourceBackoff: 30 * time.Second,
			DatabaseTimeout: 5 * time.Second,
		},

		Git: GitConfig{
			BranchPrefix: "improvement",
			AuthorName:   "codesmith",
			AuthorEmail:  "agent@codesmith.local",
		},

		Logging: LoggingConfig{
			Enabled:            true,
			Dir:                "./logs",
			Level:              "info",
			LLMLogDir:          "./logs/llm",
			LLMLogsToKeep:      10,
			IncludeFullPrompts: true,
		},
	}
}

// Load reads the configuration from path, applies environment overrides,
// and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	// Models listed in the file replace the default set instead of merging
	// into it; a file without a models section keeps the defaults.
	defaultModels := cfg.Models
	cfg.Models = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Models == nil {
		cfg.Models = defaultModels
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides fills provider API keys from the environment when the
// config leaves them blank, and honours test-mode toggles.
func (c *Config) ApplyEnvOverrides() {
	for name, m := range c.Models {
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case "anthropic":
			m.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openrouter":
			m.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
		c.Models[name] = m
	}

	if os.Getenv("SMITH_USE_MOCK_LLM") != "" {
		for name, m := range c.Models {
			m.Provider = "mock"
			c.Models[name] = m
		}
	}
}

// TestMode reports whether test-friendly behavior is requested.
func TestMode() bool { return os.Getenv("SMITH_TEST_MODE") != "" }

// DisableLongRunning reports whether long-running operations should be skipped.
func DisableLongRunning() bool { return os.Getenv("SMITH_DISABLE_LONG_RUNNING") != "" }

// NoFork reports whether subprocess-heavy paths should be avoided.
func NoFork() bool { return os.Getenv("SMITH_NO_FORK") != "" }

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	validProviders := map[string]bool{
		"anthropic": true, "openrouter": true, "ollama": true, "gemini": true, "mock": true,
	}
	for name, m := range c.Models {
		if !validProviders[m.Provider] {
			return fmt.Errorf("model %q: unknown provider %q", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("model %q: missing model identifier", name)
		}
		needsKey := m.Provider == "anthropic" || m.Provider == "openrouter" || m.Provider == "gemini"
		if needsKey && m.APIKey == "" {
			return fmt.Errorf("model %q: provider %s requires an API key", name, m.Provider)
		}
	}

	for _, phase := range []struct {
		name string
		pc   PhaseConfig
	}{
		{"research", c.Phases.Research},
		{"deliberation", c.Phases.Deliberation},
		{"tdd", c.Phases.TDD},
	} {
		for _, model := range phase.pc.Models {
			if _, ok := c.Models[model]; !ok {
				return fmt.Errorf("phase %s references unknown model %q", phase.name, model)
			}
		}
	}

	if c.Agent.WorkingDir == "" {
		return fmt.Errorf("agent.working_dir is required")
	}
	return nil
}

// GetModel returns the named model config.
func (c *Config) GetModel(name string) (ModelConfig, bool) {
	m, ok := c.Models[name]
	return m, ok
}

// RoleModel resolves a role (default, code_generation, planning) to a model
// config, falling back to the default role.
func (c *Config) RoleModel(role string) (ModelConfig, bool) {
	var name string
	switch role {
	case "code_generation":
		name = c.LLM.CodeGeneration
	case "planning":
		name = c.LLM.Planning
	default:
		name = c.LLM.Default
	}
	if name == "" {
		name = c.LLM.Default
	}
	return c.GetModel(name)
}

// DataPath joins the data directory with the given file name.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Agent.DataDir, name)
}
