// Package routing picks a registry model for a runtime when the config names
// tags instead of a model id.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/snow-ghost/skillforge/pkg/registry"
)

var ErrNoModel = errors.New("no model matches")

// Strategy names.
const (
	StrategyFirst    = "first"
	StrategyCheapest = "cheapest"
)

// ModelSelector chooses one model from a non-empty candidate list.
type ModelSelector interface {
	SelectModel(models []registry.ModelConfig) registry.ModelConfig
}

// FirstStrategy keeps registry order.
type FirstStrategy struct{}

func (FirstStrategy) SelectModel(models []registry.ModelConfig) registry.ModelConfig {
	return models[0]
}

// CheapestStrategy picks the lowest combined price per 1K tokens. Ties keep
// registry order.
type CheapestStrategy struct{}

func (CheapestStrategy) SelectModel(models []registry.ModelConfig) registry.ModelConfig {
	best := models[0]
	for _, m := range models[1:] {
		if price(m) < price(best) {
			best = m
		}
	}
	return best
}

func price(m registry.ModelConfig) float64 {
	return m.Pricing.InputPer1K + m.Pricing.OutputPer1K
}

// ModelRouter resolves models against a registry.
type ModelRouter struct {
	registry   *registry.Registry
	strategies map[string]ModelSelector
}

func NewModelRouter(reg *registry.Registry) *ModelRouter {
	return &ModelRouter{
		registry: reg,
		strategies: map[string]ModelSelector{
			StrategyFirst:    FirstStrategy{},
			StrategyCheapest: CheapestStrategy{},
		},
	}
}

// Resolve returns the model with id when id is set. Otherwise it filters the
// registry to models carrying every tag and applies strategy (first when empty).
func (r *ModelRouter) Resolve(id string, tags []string, strategy string) (registry.ModelConfig, error) {
	if id != "" {
		mc := r.registry.FindModel(id)
		if mc == nil {
			return registry.ModelConfig{}, fmt.Errorf("%w: id %q", ErrNoModel, id)
		}
		return *mc, nil
	}

	if strategy == "" {
		strategy = StrategyFirst
	}
	selector, ok := r.strategies[strategy]
	if !ok {
		return registry.ModelConfig{}, fmt.Errorf("unknown routing strategy %q", strategy)
	}

	var candidates []registry.ModelConfig
	for _, m := range r.registry.Models {
		if hasTags(m, tags) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return registry.ModelConfig{}, fmt.Errorf("%w: tags %v", ErrNoModel, tags)
	}
	return selector.SelectModel(candidates), nil
}

func hasTags(m registry.ModelConfig, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, tag := range m.Tags {
			if strings.EqualFold(tag, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
