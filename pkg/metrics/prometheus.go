package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics. A nil *PrometheusMetrics
// is valid and records nothing.
type PrometheusMetrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec

	// Token metrics
	TokensInputTotal  *prometheus.CounterVec
	TokensOutputTotal *prometheus.CounterVec

	// Cost metrics
	CostTotal *prometheus.CounterVec

	// Decode metrics
	DecodeTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Protection metrics
	RetriesTotal       *prometheus.CounterVec
	CircuitStateTotal  *prometheus.CounterVec
	RateLimitWaitTotal *prometheus.HistogramVec

	// Learning metrics
	IterationsTotal *prometheus.CounterVec
	SkillAccuracy   *prometheus.GaugeVec
}

// NewPrometheusMetrics registers all metrics on reg. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_llm_requests_total",
				Help: "Total number of LLM calls issued by runtimes",
			},
			[]string{"runtime", "model", "status"},
		),

		LatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skillforge_llm_latency_seconds",
				Help:    "LLM call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"runtime", "model"},
		),

		TokensInputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_llm_tokens_input_total",
				Help: "Total number of prompt tokens sent",
			},
			[]string{"runtime", "model"},
		),

		TokensOutputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_llm_tokens_output_total",
				Help: "Total number of completion tokens received",
			},
			[]string{"runtime", "model"},
		),

		CostTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_llm_cost_total",
				Help: "Total cost of LLM calls",
			},
			[]string{"runtime", "model", "currency"},
		),

		DecodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_decode_total",
				Help: "Structured output decodes by outcome (parsed, repaired, fallback)",
			},
			[]string{"runtime", "outcome"},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "skillforge_cache_hits_total",
				Help: "Total number of completion cache hits",
			},
		),

		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "skillforge_cache_misses_total",
				Help: "Total number of completion cache misses",
			},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_llm_retries_total",
				Help: "Total number of provider retries",
			},
			[]string{"model"},
		),

		CircuitStateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_circuit_state_changes_total",
				Help: "Circuit breaker transitions by target state",
			},
			[]string{"model", "state"},
		),

		RateLimitWaitTotal: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skillforge_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the rate limiter",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
			},
			[]string{"model"},
		),

		IterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillforge_learning_iterations_total",
				Help: "Learning iterations by outcome (optimized, skipped)",
			},
			[]string{"outcome"},
		),

		SkillAccuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "skillforge_skill_accuracy",
				Help: "Last observed accuracy per skill output",
			},
			[]string{"output"},
		),
	}
}

// RecordRequest records a request metric
func (m *PrometheusMetrics) RecordRequest(runtime, model, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(runtime, model, status).Inc()
}

// RecordLatency records a latency metric
func (m *PrometheusMetrics) RecordLatency(runtime, model string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LatencyHistogram.WithLabelValues(runtime, model).Observe(duration.Seconds())
}

// RecordTokens records token metrics
func (m *PrometheusMetrics) RecordTokens(runtime, model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.TokensInputTotal.WithLabelValues(runtime, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensOutputTotal.WithLabelValues(runtime, model).Add(float64(outputTokens))
	}
}

// RecordCost records a cost metric
func (m *PrometheusMetrics) RecordCost(runtime, model, currency string, cost float64) {
	if m == nil || cost <= 0 {
		return
	}
	m.CostTotal.WithLabelValues(runtime, model, currency).Add(cost)
}

// RecordDecode records the outcome of decoding a completion
func (m *PrometheusMetrics) RecordDecode(runtime, outcome string) {
	if m == nil {
		return
	}
	m.DecodeTotal.WithLabelValues(runtime, outcome).Inc()
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(model string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(model).Inc()
}

// RecordCircuitState records a circuit breaker transition
func (m *PrometheusMetrics) RecordCircuitState(model, state string) {
	if m == nil {
		return
	}
	m.CircuitStateTotal.WithLabelValues(model, state).Inc()
}

// RecordRateLimitWait records time spent blocked on the rate limiter
func (m *PrometheusMetrics) RecordRateLimitWait(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWaitTotal.WithLabelValues(model).Observe(d.Seconds())
}

// RecordIteration records a learning iteration outcome
func (m *PrometheusMetrics) RecordIteration(outcome string) {
	if m == nil {
		return
	}
	m.IterationsTotal.WithLabelValues(outcome).Inc()
}

// RecordAccuracy records the accuracy of a skill output
func (m *PrometheusMetrics) RecordAccuracy(output string, accuracy float64) {
	if m == nil {
		return
	}
	m.SkillAccuracy.WithLabelValues(output).Set(accuracy)
}
