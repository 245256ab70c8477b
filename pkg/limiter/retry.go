package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" koanf:"max_retries"`
	BaseDelay       time.Duration `json:"base_delay" koanf:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay" koanf:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" koanf:"backoff_factor"`
	Jitter          bool          `json:"jitter" koanf:"jitter"`
	RetryableErrors []int         `json:"retryable_errors" koanf:"retryable_errors"`
}

// DefaultRetryConfig returns the default retry configuration. Runtimes make
// a single attempt unless MaxRetries is raised.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      0,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		Jitter:          true,
		RetryableErrors: []int{429, 500, 502, 503, 504},
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func(ctx context.Context) (llm.ChatResponse, error)

// RetryHook is called before each retry with the attempt about to be made.
type RetryHook func(ctx context.Context, attempt int, delay time.Duration, err error)

// RetryManager manages retry logic
type RetryManager struct {
	config  *RetryConfig
	onRetry RetryHook
}

// NewRetryManager creates a new retry manager
func NewRetryManager(config *RetryConfig) *RetryManager {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryManager{config: config}
}

// OnRetry sets the hook invoked before every retry.
func (rm *RetryManager) OnRetry(hook RetryHook) *RetryManager {
	rm.onRetry = hook
	return rm
}

// Execute executes a function with retry logic
func (rm *RetryManager) Execute(ctx context.Context, fn RetryableFunc) (llm.ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= rm.config.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == rm.config.MaxRetries {
			break
		}
		if !rm.isRetryableError(err) {
			return llm.ChatResponse{}, err
		}

		delay := rm.calculateDelay(attempt)
		if rm.onRetry != nil {
			rm.onRetry(ctx, attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if rm.config.MaxRetries == 0 {
		return llm.ChatResponse{}, lastErr
	}
	return llm.ChatResponse{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (rm *RetryManager) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return slices.Contains(rm.config.RetryableErrors, httpErr.StatusCode)
	}
	return false
}

// calculateDelay returns baseDelay * backoffFactor^attempt, capped at MaxDelay,
// with +/-25% jitter when enabled.
func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	delay := float64(rm.config.BaseDelay) * math.Pow(rm.config.BackoffFactor, float64(attempt))

	if delay > float64(rm.config.MaxDelay) {
		delay = float64(rm.config.MaxDelay)
	}

	if rm.config.Jitter {
		jitter := rand.Float64()*0.5 - 0.25
		delay = delay * (1 + jitter)
	}

	return time.Duration(delay)
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Cause }

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message, body string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// IsRetryableHTTPError checks if an HTTP status code is retryable
func IsRetryableHTTPError(statusCode int) bool {
	return slices.Contains([]int{429, 500, 502, 503, 504}, statusCode)
}
