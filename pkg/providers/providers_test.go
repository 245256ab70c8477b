package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/skillforge/pkg/limiter"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/registry"
)

// mockOpenAIServer answers /chat/completions and records the last payload.
func mockOpenAIServer(t *testing.T, status int, last *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if last != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(last))
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "slow down", "type": "rate_limit_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "sentiment: positive"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Chat(t *testing.T) {
	var payload map[string]any
	srv := mockOpenAIServer(t, http.StatusOK, &payload)

	p := NewOpenAIProvider(srv.URL, "test-key")
	mc := registry.ModelConfig{ID: "openai:gpt-4o-mini", Provider: "openai"}

	resp, err := p.Chat(context.Background(), mc, llm.NewChatRequest("", "Classify.", "Text: great", 0, 256))
	require.NoError(t, err)

	assert.Equal(t, "sentiment: positive", resp.Text)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
	assert.Equal(t, "openai:gpt-4o-mini", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "gpt-4o-mini", payload["model"])
	assert.Contains(t, payload, "temperature")
	assert.EqualValues(t, 256, payload["max_tokens"])
	msgs := payload["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIProvider_StatusErrorIsClassified(t *testing.T) {
	srv := mockOpenAIServer(t, http.StatusTooManyRequests, nil)

	p := NewOpenAIProvider(srv.URL, "test-key")
	_, err := p.Chat(context.Background(), registry.ModelConfig{ID: "openai:gpt-4o-mini"}, llm.NewChatRequest("", "", "x", 0, 16))
	require.Error(t, err)

	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, limiter.IsRetryableHTTPError(httpErr.StatusCode))
}

func TestOllamaProvider_Chat(t *testing.T) {
	var payload OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.2",
			"message": map[string]any{"role": "assistant", "content": "answer: 4"},
			"done":    true,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	mc := registry.ModelConfig{ID: "ollama:llama3.2", Provider: "ollama"}

	resp, err := p.Chat(context.Background(), mc, llm.NewChatRequest("", "Solve.", "2+2", 0, 64))
	require.NoError(t, err)

	assert.Equal(t, "answer: 4", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Positive(t, resp.Usage.PromptTokens)
	assert.Positive(t, resp.Usage.CompletionTokens)
	assert.Equal(t, "llama3.2", payload.Model)
	assert.False(t, payload.Stream)
	assert.EqualValues(t, 64, payload.Options["num_predict"])
}

func TestOllamaProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL).Chat(context.Background(), registry.ModelConfig{ID: "ollama:llama3.2"}, llm.NewChatRequest("", "", "x", 0, 16))

	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "model not loaded")
}

func TestAnthropicProvider_Chat(t *testing.T) {
	var payload AnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "new_prompt: "}, {"type": "text", "text": "Be precise."}},
			"usage":       map[string]any{"input_tokens": 20, "output_tokens": 5},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "secret")
	mc := registry.ModelConfig{ID: "anthropic:claude-3-5-sonnet-20241022", Provider: "anthropic"}

	resp, err := p.Chat(context.Background(), mc, llm.NewChatRequest("", "You are a prompt engineer.", "Improve this.", 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "new_prompt: Be precise.", resp.Text)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)

	assert.Equal(t, "claude-3-5-sonnet-20241022", payload.Model)
	assert.Equal(t, "You are a prompt engineer.", payload.System)
	assert.Equal(t, anthropicMaxTokens, payload.MaxTokens)
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, llm.RoleUser, payload.Messages[0].Role)
}

func TestCreateProvider(t *testing.T) {
	t.Setenv("SKILLFORGE_TEST_KEY", "k")

	tests := []struct {
		provider string
		want     any
	}{
		{"openai", &OpenAIProvider{}},
		{"openrouter", &OpenAIProvider{}},
		{"vllm", &OpenAIProvider{}},
		{"lmstudio", &OpenAIProvider{}},
		{"anthropic", &AnthropicProvider{}},
		{"ollama", &OllamaProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := CreateProvider(registry.ModelConfig{ID: "m", Provider: tt.provider, APIKeyEnv: "SKILLFORGE_TEST_KEY"})
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}

	_, err := CreateProvider(registry.ModelConfig{ID: "m", Provider: "unknown"})
	assert.Error(t, err)

	_, err = CreateProvider(registry.ModelConfig{ID: "m", Provider: "openai", APIKeyEnv: "SKILLFORGE_TEST_MISSING_KEY"})
	assert.ErrorContains(t, err, "API key")

	_, err = CreateProvider(registry.ModelConfig{ID: "m", Provider: "vllm"})
	assert.NoError(t, err)
}

func TestNewClient_DefaultsModelName(t *testing.T) {
	var payload map[string]any
	srv := mockOpenAIServer(t, http.StatusOK, &payload)

	client := NewClient(NewOpenAIProvider(srv.URL, "k"), registry.ModelConfig{ID: "openai:gpt-4o", Provider: "openai"})
	_, err := client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", payload["model"])
}
