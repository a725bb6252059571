package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	// Defaults reference providers that need keys; fill dummies before
	// validating the shape.
	for name, m := range cfg.Models {
		m.APIKey = "test"
		cfg.Models[name] = m
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
name: custom
models:
  only:
    provider: mock
    model: fake-model
phases:
  research:
    models: [only]
  deliberation:
    models: [only]
  tdd:
    models: [only]
llm:
  default: only
agent:
  working_dir: /tmp/ws
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Name)
	m, ok := cfg.GetModel("only")
	require.True(t, ok)
	assert.Equal(t, "mock", m.Provider)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = map[string]ModelConfig{
		"bad": {Provider: "frobnicator", Model: "x"},
	}
	cfg.Phases = PhasesConfig{}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = map[string]ModelConfig{
		"a": {Provider: "anthropic", Model: "claude"},
	}
	cfg.Phases = PhasesConfig{}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownPhaseModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = map[string]ModelConfig{
		"m": {Provider: "mock", Model: "x"},
	}
	cfg.Phases.Research.Models = []string{"missing"}
	assert.Error(t, cfg.Validate())
}

func TestEnvOverridesFillKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	m, _ := cfg.GetModel("claude")
	assert.Equal(t, "from-env", m.APIKey)
}

func TestMockLLMToggle(t *testing.T) {
	t.Setenv("SMITH_USE_MOCK_LLM", "1")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	for name, m := range cfg.Models {
		assert.Equal(t, "mock", m.Provider, "model %s", name)
	}
}

func TestRoleModelFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.CodeGeneration = ""
	m, ok := cfg.RoleModel("code_generation")
	assert.True(t, ok)
	assert.NotEmpty(t, m.Model)
}
