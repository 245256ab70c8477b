package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestLogIteration(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)

	LogIteration(context.Background(), l, "run-1", 2, "classify", "improved", 0.5)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "learning iteration finished", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, int64(2), fields["iteration"])
	assert.Equal(t, "classify", fields["skill"])
	assert.Equal(t, "improved", fields["outcome"])
	assert.Equal(t, 0.5, fields["accuracy"])
	assert.NotContains(t, fields, "trace_id")
}

func TestLogLLMCall_Levels(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	LogLLMCall(context.Background(), l, "student", "gpt-4o-mini", "success", 15*time.Millisecond, 42, nil)
	LogLLMCall(context.Background(), l, "student", "gpt-4o-mini", "error", time.Millisecond, 0, errors.New("boom"))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, int64(42), logs.All()[0].ContextMap()["tokens"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, "boom", logs.All()[1].ContextMap()["error"])
}

func TestLogDecode(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)

	LogDecode(context.Background(), l, "teacher", "fallback", []string{"answer"})

	entries := logs.FilterField(zap.String("outcome", "fallback")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"answer"}, entries[0].ContextMap()["missing"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	LogDecode(context.Background(), l, "teacher", "ok", nil)
	assert.Empty(t, logs.FilterField(zap.String("outcome", "ok")).All())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(Config{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	assert.NotNil(t, OrNop(nil))
}
