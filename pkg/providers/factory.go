package providers

import (
	"fmt"
	"os"

	"github.com/snow-ghost/skillforge/pkg/registry"
)

// Default endpoints used when a model config omits base_url.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"vllm":       "http://localhost:8000/v1",
	"lmstudio":   "http://localhost:1234/v1",
	"ollama":     "http://localhost:11434",
	"anthropic":  "https://api.anthropic.com",
}

// keyRequired lists providers that refuse to start without an API key.
var keyRequired = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"anthropic":  true,
}

// CreateProvider creates a provider instance from model configuration
func CreateProvider(mc registry.ModelConfig) (Provider, error) {
	baseURL := mc.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[mc.Provider]
	}

	apiKey := ""
	if mc.APIKeyEnv != "" {
		apiKey = os.Getenv(mc.APIKeyEnv)
	}
	if keyRequired[mc.Provider] && apiKey == "" {
		return nil, fmt.Errorf("model %s: API key not found in environment variable %q", mc.ID, mc.APIKeyEnv)
	}

	switch mc.Provider {
	case "openai", "openrouter", "vllm", "lmstudio":
		return NewOpenAIProvider(baseURL, apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(baseURL, apiKey), nil
	case "ollama":
		return NewOllamaProvider(baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", mc.Provider)
	}
}

// GetSupportedProviders returns a list of supported provider types
func GetSupportedProviders() []string {
	return []string{
		"openai",
		"anthropic",
		"ollama",
		"vllm",
		"lmstudio",
		"openrouter",
	}
}
