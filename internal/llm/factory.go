package llm

import (
	"fmt"

	"codesmith/internal/config"
	"codesmith/internal/llm/llmlog"
)

// New builds a provider for the given model config. The transcript logger is
// shared by every provider in the process.
func New(cfg config.ModelConfig, log *llmlog.Logger) (Provider, error) {
	if log == nil {
		log, _ = llmlog.New(llmlog.Options{})
	}
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg, log)
	case "openrouter":
		return NewOpenRouterProvider(cfg, log)
	case "ollama":
		return NewOllamaProvider(cfg, log)
	case "gemini":
		return NewGeminiProvider(cfg, log)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
