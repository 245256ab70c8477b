package cost

import (
	"fmt"
	"math"

	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/registry"
)

// CostResult represents the calculated cost breakdown
type CostResult struct {
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
	Currency     string  `json:"currency"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
}

// Calculator handles cost calculations
type Calculator struct {
	registry *registry.Registry
}

// NewCalculator creates a new cost calculator
func NewCalculator(registry *registry.Registry) *Calculator {
	return &Calculator{
		registry: registry,
	}
}

func round6(v float64) float64 {
	return math.Round(v*1000000) / 1000000
}

// CalcCost calculates the cost for usage and pricing, rounded to 6 decimals.
func CalcCost(u llm.Usage, p registry.Pricing) (inputCost, outputCost, total float64) {
	inputCost = round6(float64(u.PromptTokens) * p.InputPer1K / 1000.0)
	outputCost = round6(float64(u.CompletionTokens) * p.OutputPer1K / 1000.0)
	total = round6(inputCost + outputCost)
	return inputCost, outputCost, total
}

// Result computes the breakdown for a usage against pricing.
func Result(u llm.Usage, p registry.Pricing) CostResult {
	in, out, total := CalcCost(u, p)
	return CostResult{
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    total,
		Currency:     p.Currency,
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

// CalcCostForModel calculates cost for a specific model
func (c *Calculator) CalcCostForModel(modelID string, usage llm.Usage) (*CostResult, error) {
	mc := c.registry.FindModel(modelID)
	if mc == nil {
		return nil, fmt.Errorf("model %s not found in registry", modelID)
	}
	res := Result(usage, mc.Pricing)
	return &res, nil
}

// EstimateCost estimates cost before making a request
func (c *Calculator) EstimateCost(modelID string, estimatedPromptTokens, estimatedCompletionTokens int) (*CostResult, error) {
	return c.CalcCostForModel(modelID, llm.Usage{
		PromptTokens:     estimatedPromptTokens,
		CompletionTokens: estimatedCompletionTokens,
		TotalTokens:      estimatedPromptTokens + estimatedCompletionTokens,
	})
}
