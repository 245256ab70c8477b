package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading model configurations
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// LoadRegistry loads the model registry from the configuration file.
// When no file exists the default registry is returned.
func (l *Loader) LoadRegistry() (*Registry, error) {
	if configPath := os.Getenv("SKILLFORGE_MODELS"); configPath != "" {
		l.configPath = configPath
	}

	if l.configPath == "" {
		l.configPath = "models.yaml"
	}

	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return GetDefaultRegistry(), nil
	}

	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.configPath, err)
	}

	return LoadRegistryFromBytes(data)
}

// LoadRegistryFromBytes loads registry from byte data
func LoadRegistryFromBytes(data []byte) (*Registry, error) {
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &registry, nil
}

// GetDefaultRegistry returns a registry with some default models
func GetDefaultRegistry() *Registry {
	return &Registry{
		Models: []ModelConfig{
			{
				ID:        "openai:gpt-4o-mini",
				Provider:  "openai",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.00015,
					OutputPer1K: 0.0006,
				},
				DefaultParams: map[string]interface{}{
					"temperature": 0.0,
					"max_tokens":  256,
				},
				MaxRPM: 10000,
				MaxTPM: 200000,
				Tags:   []string{"student", "fast"},
			},
			{
				ID:        "openai:gpt-4o",
				Provider:  "openai",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.005,
					OutputPer1K: 0.015,
				},
				DefaultParams: map[string]interface{}{
					"temperature": 0.0,
					"max_tokens":  1024,
				},
				MaxRPM: 5000,
				MaxTPM: 100000,
				Tags:   []string{"teacher", "advanced"},
			},
			{
				ID:        "anthropic:claude-3-5-sonnet-20241022",
				Provider:  "anthropic",
				BaseURL:   "https://api.anthropic.com",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.003,
					OutputPer1K: 0.015,
				},
				DefaultParams: map[string]interface{}{
					"temperature": 0.0,
					"max_tokens":  1024,
				},
				MaxRPM: 5000,
				MaxTPM: 100000,
				Tags:   []string{"teacher", "advanced"},
			},
			{
				ID:        "ollama:llama3.2",
				Provider:  "ollama",
				BaseURL:   "http://localhost:11434",
				APIKeyEnv: "",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.0,
					OutputPer1K: 0.0,
				},
				DefaultParams: map[string]interface{}{
					"temperature": 0.0,
					"max_tokens":  256,
				},
				MaxRPM: 1000,
				MaxTPM: 10000,
				Tags:   []string{"local", "student"},
			},
		},
	}
}
