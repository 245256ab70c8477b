package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/snow-ghost/skillforge/pkg/registry"
)

// RateLimiter manages rate limiting for models
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// RateLimiterStats is a snapshot of a model's limiter.
type RateLimiterStats struct {
	ModelID string     `json:"model_id"`
	Limit   rate.Limit `json:"limit"`
	Burst   int        `json:"burst"`
	Tokens  float64    `json:"tokens"`
	MaxRPM  int        `json:"max_rpm"`
	MaxTPM  int        `json:"max_tpm"`
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// requestsPerMinute picks the more restrictive of MaxRPM and MaxTPM, assuming
// an average of 100 tokens per request.
func requestsPerMinute(config registry.ModelConfig) float64 {
	rpm := float64(config.MaxRPM)
	tpmAsRPM := float64(config.MaxTPM) / 100.0

	switch {
	case rpm > 0 && tpmAsRPM > 0:
		if rpm < tpmAsRPM {
			return rpm
		}
		return tpmAsRPM
	case rpm > 0:
		return rpm
	case tpmAsRPM > 0:
		return tpmAsRPM
	default:
		return 1000.0
	}
}

// GetLimiter returns or creates a rate limiter for a model
func (rl *RateLimiter) GetLimiter(modelID string, config registry.ModelConfig) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[modelID]; exists {
		return limiter
	}

	limit := requestsPerMinute(config)
	burst := int(limit / 10.0)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit/60.0), burst)
	rl.limiters[modelID] = limiter

	return limiter
}

// Wait waits for the rate limiter to allow the request
func (rl *RateLimiter) Wait(ctx context.Context, modelID string, config registry.ModelConfig) error {
	if err := rl.GetLimiter(modelID, config).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(modelID string, config registry.ModelConfig) bool {
	return rl.GetLimiter(modelID, config).Allow()
}

// AllowN checks if N tokens are allowed without waiting
func (rl *RateLimiter) AllowN(modelID string, config registry.ModelConfig, n int) bool {
	return rl.GetLimiter(modelID, config).AllowN(time.Now(), n)
}

// GetStats returns rate limiter statistics for a model
func (rl *RateLimiter) GetStats(modelID string, config registry.ModelConfig) RateLimiterStats {
	limiter := rl.GetLimiter(modelID, config)
	return RateLimiterStats{
		ModelID: modelID,
		Limit:   limiter.Limit(),
		Burst:   limiter.Burst(),
		Tokens:  limiter.Tokens(),
		MaxRPM:  config.MaxRPM,
		MaxTPM:  config.MaxTPM,
	}
}

