package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/llm/mock"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/runtime"
	"github.com/snow-ghost/skillforge/skills"
)

func sentimentSet(t *testing.T) *skills.Set {
	t.Helper()
	cfg := skills.Classification("sentiment", []string{"positive", "negative"})
	cfg.InputTemplate = "Text: {text}"
	s, err := skills.New(cfg)
	require.NoError(t, err)
	set, err := skills.NewLinear([]*skills.Skill{s}, nil)
	require.NoError(t, err)
	return set
}

func TestRunner_Run(t *testing.T) {
	client := mock.New().Default(Classifier("predictions", map[string]string{
		"love":    "positive",
		"battery": "negative",
		"Great":   "positive",
	}))
	rt := runtime.New(client, runtime.Config{Name: "student"})

	metrics, pass, err := NewRunner().Run(context.Background(), sentimentSet(t), SentimentCases(), rt)
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Equal(t, 3.0, metrics["cases_total"])
	assert.Equal(t, 2.0, metrics["cases_passed"])
	assert.Equal(t, 1.0, metrics["cases_failed"])
	assert.InDelta(t, 2.0/3.0, metrics["accuracy"], 1e-9)
	assert.GreaterOrEqual(t, metrics["duration_ms_total"], 0.0)
}

func TestRunner_EmptyCases(t *testing.T) {
	metrics, pass, err := NewRunner().Run(context.Background(), sentimentSet(t), nil, nil)
	require.NoError(t, err)
	assert.True(t, pass)
	assert.Zero(t, metrics["cases_total"])
}

func TestDataset(t *testing.T) {
	ds, gt := Dataset(SentimentCases())
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, map[string]string{"sentiment": "sentiment_label"}, gt)

	labels, err := ds.Column("sentiment_label")
	require.NoError(t, err)
	assert.Equal(t, []any{"positive", "negative", "negative"}, labels)
}

func TestClassifier_LongestKeyWins(t *testing.T) {
	respond := Classifier("label", map[string]string{"great": "positive", "not great": "negative"})
	text, err := respond(llm.NewChatRequest("m", "", "this is not great", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "label: negative", text)

	text, err = respond(llm.NewChatRequest("m", "", "nothing", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "label: unknown", text)
}

func TestTeacher(t *testing.T) {
	teacher := Teacher("sarcasm is negative", "Detect sarcasm.")
	rt := runtime.New(teacher, runtime.Config{Name: "teacher"})

	out, err := rt.RecordToRecord(context.Background(), core.Record{"input": "x"}, core.Templates{
		Instruction: "You are a helpful assistant.",
		Input:       "{input}",
		Output:      []core.Field{{Name: "reasoning"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "sarcasm is negative", out["reasoning"])
}
