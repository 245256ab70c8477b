package limiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/registry"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name        string                             `json:"name"`
	MaxRequests uint32                             `json:"max_requests"`
	Interval    time.Duration                      `json:"interval"`
	Timeout     time.Duration                      `json:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-"`
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(modelID string, from, to gobreaker.State)

// CircuitBreakerStats is a snapshot of a model's breaker.
type CircuitBreakerStats struct {
	ModelID             string `json:"model_id"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalSuccesses      uint32 `json:"total_success"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// CircuitBreakerManager manages circuit breakers for models
type CircuitBreakerManager struct {
	breakers      map[string]*gobreaker.CircuitBreaker
	configs       map[string]*CircuitBreakerConfig
	onStateChange StateChangeFunc
	mu            sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]*CircuitBreakerConfig),
	}
}

// OnStateChange registers an observer for breakers created after the call.
func (cbm *CircuitBreakerManager) OnStateChange(fn StateChangeFunc) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.onStateChange = fn
}

// Configure overrides the breaker settings of one model.
func (cbm *CircuitBreakerManager) Configure(modelID string, cfg *CircuitBreakerConfig) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	delete(cbm.breakers, modelID)
	cbm.configs[modelID] = cfg
}

// GetBreaker returns or creates a circuit breaker for a model
func (cbm *CircuitBreakerManager) GetBreaker(modelID string, config registry.ModelConfig) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[modelID]; exists {
		return breaker
	}

	cbConfig := cbm.getConfigForModel(modelID, config)
	observer := cbm.onStateChange

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbConfig.Name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: cbConfig.ReadyToTrip,
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			if observer != nil {
				observer(modelID, from, to)
			}
		},
	})

	cbm.breakers[modelID] = breaker
	cbm.configs[modelID] = cbConfig

	return breaker
}

// getConfigForModel returns circuit breaker configuration for a model.
// High-throughput models get more lenient trip settings.
func (cbm *CircuitBreakerManager) getConfigForModel(modelID string, config registry.ModelConfig) *CircuitBreakerConfig {
	if cbConfig, exists := cbm.configs[modelID]; exists {
		return cbConfig
	}

	cbConfig := DefaultCircuitBreakerConfig(fmt.Sprintf("model-%s", modelID))

	if config.MaxRPM > 5000 || config.MaxTPM > 100000 {
		cbConfig.MaxRequests = 5
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		}
	} else {
		cbConfig.MaxRequests = 2
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.4
		}
	}

	return cbConfig
}

// Execute executes a function through the circuit breaker
func (cbm *CircuitBreakerManager) Execute(modelID string, config registry.ModelConfig, fn func() (llm.ChatResponse, error)) (llm.ChatResponse, error) {
	breaker := cbm.GetBreaker(modelID, config)

	result, err := breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("circuit breaker %s: %w", modelID, err)
	}

	return result.(llm.ChatResponse), nil
}

// GetState returns the current state of a circuit breaker
func (cbm *CircuitBreakerManager) GetState(modelID string, config registry.ModelConfig) gobreaker.State {
	return cbm.GetBreaker(modelID, config).State()
}

// GetStats returns circuit breaker statistics for a model
func (cbm *CircuitBreakerManager) GetStats(modelID string, config registry.ModelConfig) CircuitBreakerStats {
	breaker := cbm.GetBreaker(modelID, config)
	counts := breaker.Counts()

	return CircuitBreakerStats{
		ModelID:             modelID,
		State:               breaker.State().String(),
		Requests:            counts.Requests,
		TotalSuccesses:      counts.TotalSuccesses,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// IsOpen checks if the circuit breaker is open for a model
func (cbm *CircuitBreakerManager) IsOpen(modelID string, config registry.ModelConfig) bool {
	return cbm.GetState(modelID, config) == gobreaker.StateOpen
}

// IsClosed checks if the circuit breaker is closed for a model
func (cbm *CircuitBreakerManager) IsClosed(modelID string, config registry.ModelConfig) bool {
	return cbm.GetState(modelID, config) == gobreaker.StateClosed
}
