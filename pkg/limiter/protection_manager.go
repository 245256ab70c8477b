package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/metrics"
	"github.com/snow-ghost/skillforge/pkg/registry"
)

// ErrCircuitOpen is returned without calling the provider while a model's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config selects the protection layers applied to provider calls.
type Config struct {
	RateLimit      bool        `koanf:"rate_limit"`
	CircuitBreaker bool        `koanf:"circuit_breaker"`
	Retry          RetryConfig `koanf:"retry"`
}

// DefaultConfig enables every layer with the default retry settings.
func DefaultConfig() Config {
	return Config{RateLimit: true, CircuitBreaker: true, Retry: *DefaultRetryConfig()}
}

// ProtectionManager integrates rate limiting, retries, and circuit breaker
type ProtectionManager struct {
	config         Config
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreakerManager
	logger         *zap.Logger
	metrics        *metrics.PrometheusMetrics
}

// Stats reports the protection state of one model.
type Stats struct {
	ModelID        string              `json:"model_id"`
	RateLimiter    RateLimiterStats    `json:"rate_limiter"`
	CircuitBreaker CircuitBreakerStats `json:"circuit_breaker"`
	Retry          RetryConfig         `json:"retry_config"`
}

// NewProtectionManager creates a new protection manager. logger and m may be nil.
func NewProtectionManager(config Config, logger *zap.Logger, m *metrics.PrometheusMetrics) *ProtectionManager {
	pm := &ProtectionManager{
		config:         config,
		rateLimiter:    NewRateLimiter(),
		circuitBreaker: NewCircuitBreakerManager(),
		logger:         logging.OrNop(logger),
		metrics:        m,
	}
	pm.circuitBreaker.OnStateChange(func(modelID string, from, to gobreaker.State) {
		logging.LogCircuitBreaker(pm.logger, modelID, from.String(), to.String())
		pm.metrics.RecordCircuitState(modelID, to.String())
	})
	return pm
}

// Execute runs fn behind the rate limiter, the circuit breaker and the retry loop.
func (pm *ProtectionManager) Execute(ctx context.Context, mc registry.ModelConfig, fn RetryableFunc) (llm.ChatResponse, error) {
	if pm.config.CircuitBreaker && pm.circuitBreaker.IsOpen(mc.ID, mc) {
		return llm.ChatResponse{}, fmt.Errorf("model %s: %w", mc.ID, ErrCircuitOpen)
	}

	if pm.config.RateLimit {
		start := time.Now()
		if err := pm.rateLimiter.Wait(ctx, mc.ID, mc); err != nil {
			return llm.ChatResponse{}, fmt.Errorf("rate limiting failed: %w", err)
		}
		pm.metrics.RecordRateLimitWait(mc.ID, time.Since(start))
	}

	retry := NewRetryManager(&pm.config.Retry).OnRetry(func(ctx context.Context, attempt int, delay time.Duration, err error) {
		logging.LogRetry(ctx, pm.logger, mc.ID, attempt, delay, err)
		pm.metrics.RecordRetry(mc.ID)
	})
	run := func() (llm.ChatResponse, error) { return retry.Execute(ctx, fn) }

	if !pm.config.CircuitBreaker {
		return run()
	}
	resp, err := pm.circuitBreaker.Execute(mc.ID, mc, run)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return llm.ChatResponse{}, fmt.Errorf("model %s: %w", mc.ID, ErrCircuitOpen)
	}
	return resp, err
}

// GetStats returns statistics for all protection layers of a model
func (pm *ProtectionManager) GetStats(mc registry.ModelConfig) Stats {
	return Stats{
		ModelID:        mc.ID,
		RateLimiter:    pm.rateLimiter.GetStats(mc.ID, mc),
		CircuitBreaker: pm.circuitBreaker.GetStats(mc.ID, mc),
		Retry:          pm.config.Retry,
	}
}

// Protect wraps client so every call goes through pm under model mc.
func Protect(client core.LLMClient, pm *ProtectionManager, mc registry.ModelConfig) core.LLMClient {
	if pm == nil {
		return client
	}
	return core.LLMClientFunc(func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		return pm.Execute(ctx, mc, func(ctx context.Context) (llm.ChatResponse, error) {
			return client.Chat(ctx, req)
		})
	})
}
