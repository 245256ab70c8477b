package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

func TestMockEncoder_Count(t *testing.T) {
	encoder := NewMockEncoder()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty string", text: "", expected: 1},
		{name: "short text", text: "Hello", expected: 2},
		{name: "exact multiple", text: "abcdefgh", expected: 2},
		{name: "medium text", text: "This is a test message", expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := encoder.Count(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, count)
		})
	}
}

func TestMockEncoder_Encode(t *testing.T) {
	tokens, err := NewMockEncoder().Encode("Hello world")
	require.NoError(t, err)
	assert.Len(t, tokens, 3)
}

func TestTiktokenEncoder_Count(t *testing.T) {
	encoder, err := NewTiktokenEncoder("cl100k_base")
	if err != nil {
		t.Skipf("cl100k_base unavailable: %v", err)
	}

	count, err := encoder.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	tokens, err := encoder.Encode("hello world")
	require.NoError(t, err)
	text, err := encoder.Decode(tokens)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

type fixedEncoder struct{ n int }

func (f fixedEncoder) Encode(string) ([]int, error) { return make([]int, f.n), nil }
func (f fixedEncoder) Count(string) (int, error)    { return f.n, nil }

func TestEncoderRegistry_GetEncoder(t *testing.T) {
	registry := NewEncoderRegistry()
	registry.RegisterEncoder("special", fixedEncoder{n: 7})
	registry.RegisterPrefix("gpt-", fixedEncoder{n: 9})

	assert.Equal(t, fixedEncoder{n: 7}, registry.GetEncoder("special"))
	assert.Equal(t, fixedEncoder{n: 9}, registry.GetEncoder("gpt-4o-mini"))
	_, isMock := registry.GetEncoder("unknown").(*MockEncoder)
	assert.True(t, isMock)
}

func TestEncoderRegistry_LongestPrefixWins(t *testing.T) {
	registry := NewEncoderRegistry()
	registry.RegisterPrefix("gpt-", fixedEncoder{n: 1})
	registry.RegisterPrefix("gpt-4o", fixedEncoder{n: 2})

	n, err := registry.CountTokens("gpt-4o-mini", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = registry.CountTokens("gpt-3.5-turbo", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEncoderRegistry_CountMessages(t *testing.T) {
	registry := NewEncoderRegistry()
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "abcd"},
		{Role: llm.RoleUser, Content: "abcdefgh"},
	}

	total, err := registry.CountMessages("local", msgs)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestGetDefaultRegistry_LocalModelsUseMock(t *testing.T) {
	registry := GetDefaultRegistry()
	_, isMock := registry.GetEncoder("llama3.2").(*MockEncoder)
	assert.True(t, isMock)
}
