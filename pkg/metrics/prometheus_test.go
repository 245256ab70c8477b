package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics_Record(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordRequest("student", "gpt-4o-mini", "ok")
	m.RecordRequest("student", "gpt-4o-mini", "ok")
	m.RecordDecode("student", "fallback")
	m.RecordIteration("skipped")
	m.RecordAccuracy("sentiment", 0.5)
	m.RecordTokens("student", "gpt-4o-mini", 10, 0)
	m.RecordLatency("student", "gpt-4o-mini", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("student", "gpt-4o-mini", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeTotal.WithLabelValues("student", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IterationsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.SkillAccuracy.WithLabelValues("sentiment")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.TokensInputTotal.WithLabelValues("student", "gpt-4o-mini")))
}

func TestPrometheusMetrics_NilIsNoop(t *testing.T) {
	var m *PrometheusMetrics
	assert.NotPanics(t, func() {
		m.RecordRequest("r", "m", "ok")
		m.RecordCacheHit()
		m.RecordAccuracy("x", 1)
	})
}

func TestNewPrometheusMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
