package registry

import (
	"fmt"
	"strings"
)

// Pricing represents pricing information for a model
type Pricing struct {
	Currency    string  `json:"currency" yaml:"currency"`
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// ModelConfig represents configuration for a model
type ModelConfig struct {
	ID            string                 `json:"id" yaml:"id"`             // "openai:gpt-4o-mini"
	Provider      string                 `json:"provider" yaml:"provider"` // openai|anthropic|ollama|vllm|lmstudio|openrouter|mock
	BaseURL       string                 `json:"base_url" yaml:"base_url"`
	APIKeyEnv     string                 `json:"api_key_env" yaml:"api_key_env"`
	Pricing       Pricing                `json:"pricing" yaml:"pricing"`
	DefaultParams map[string]interface{} `json:"default_params" yaml:"default_params"`
	MaxRPM        int                    `json:"max_rpm,omitempty" yaml:"max_rpm,omitempty"` // requests per minute
	MaxTPM        int                    `json:"max_tpm,omitempty" yaml:"max_tpm,omitempty"` // tokens per minute
	Tags          []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ModelName returns the upstream model name, i.e. the ID without its provider prefix.
func (mc ModelConfig) ModelName() string {
	if i := strings.IndexByte(mc.ID, ':'); i >= 0 {
		return mc.ID[i+1:]
	}
	return mc.ID
}

// Registry represents the model registry
type Registry struct {
	Models []ModelConfig `json:"models" yaml:"models"`
}

// FindModel finds a model by ID in the registry
func (r *Registry) FindModel(modelID string) *ModelConfig {
	for i := range r.Models {
		if r.Models[i].ID == modelID {
			return &r.Models[i]
		}
	}
	return nil
}

// GetModelsByProvider returns all models for a specific provider
func (r *Registry) GetModelsByProvider(provider string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	return models
}

// Validate checks that every model has an id and a provider and that ids are unique.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Models))
	for i, m := range r.Models {
		if m.ID == "" {
			return fmt.Errorf("model #%d: id is required", i)
		}
		if m.Provider == "" {
			return fmt.Errorf("model %s: provider is required", m.ID)
		}
		if seen[m.ID] {
			return fmt.Errorf("model %s: duplicate id", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}
