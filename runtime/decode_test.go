package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/skillforge/core"
)

var qaFields = []core.Field{
	{Name: "answer", Description: "Answer"},
	{Name: "confidence", Description: "Confidence from 0 to 1"},
}

func TestContract(t *testing.T) {
	got := Contract(qaFields)
	want := "Fill in the fields below. Reply only with lines of the form \"<field_name>: <value>\", one per field, in this order.\n" +
		"Answer: {answer}\n" +
		"Confidence from 0 to 1: {confidence}"
	assert.Equal(t, want, got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want core.Record
	}{
		{
			name: "plain lines",
			raw:  "answer: 4\nconfidence: 0.9",
			want: core.Record{"answer": "4", "confidence": "0.9"},
		},
		{
			name: "case and markup",
			raw:  "**Answer:** 4\n- CONFIDENCE: high",
			want: core.Record{"answer": "4", "confidence": "high"},
		},
		{
			name: "description labels",
			raw:  "Answer: Paris\nConfidence from 0 to 1: 1",
			want: core.Record{"answer": "Paris", "confidence": "1"},
		},
		{
			name: "continuation lines",
			raw:  "Sure.\nanswer: first line\nsecond line\nconfidence: 0.5",
			want: core.Record{"answer": "first line\nsecond line", "confidence": "0.5"},
		},
		{
			name: "json object",
			raw:  "```json\n{\"answer\": \"4\", \"confidence\": 0.75}\n```",
			want: core.Record{"answer": "4", "confidence": "0.75"},
		},
		{
			name: "repeated field keeps first",
			raw:  "answer: a\nanswer: b\nconfidence: 1",
			want: core.Record{"answer": "a", "confidence": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parse(tt.raw, qaFields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_MissingFields(t *testing.T) {
	_, err := parse("I think it is four.", qaFields)
	require.Error(t, err)

	var de *core.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"answer", "confidence"}, de.Missing)
	assert.Equal(t, "I think it is four.", de.Raw)

	_, err = parse("answer: 4", qaFields)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"confidence"}, de.Missing)
}

func TestParse_JSONMissingFieldFallsBackToLines(t *testing.T) {
	_, err := parse(`{"answer": "4"}`, qaFields)
	assert.Error(t, err)
}

func TestDecoded_Outcome(t *testing.T) {
	assert.Equal(t, "ok", Decoded{}.Outcome())
	assert.Equal(t, "repaired", Decoded{Repaired: true}.Outcome())
	assert.Equal(t, "fallback", Decoded{Fallback: true}.Outcome())
}
