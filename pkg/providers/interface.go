package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/limiter"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/registry"
	"github.com/snow-ghost/skillforge/pkg/tokens"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Chat performs chat completion against the model described by mc
	Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error)
}

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	tokenRegistry *tokens.EncoderRegistry
}

// NewBaseProvider creates a new base provider
func NewBaseProvider() *BaseProvider {
	return &BaseProvider{
		tokenRegistry: tokens.GetDefaultRegistry(),
	}
}

// EstimateUsage estimates token usage when the provider does not report it
func (b *BaseProvider) EstimateUsage(model string, messages []llm.Message, responseText string) llm.Usage {
	promptTokens, err := b.tokenRegistry.CountMessages(model, messages)
	if err != nil {
		promptTokens = 0
		for _, m := range messages {
			promptTokens += len(m.Content) / 4
		}
	}

	completionTokens, err := b.tokenRegistry.CountTokens(model, responseText)
	if err != nil || completionTokens < 1 {
		completionTokens = 1
	}

	return llm.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// statusError turns a non-2xx response into a *limiter.HTTPError so the
// retry layer can classify it.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return limiter.NewHTTPError(resp.StatusCode, fmt.Sprintf("%s API returned status %d", provider, resp.StatusCode), string(body))
}

// NewClient binds a provider to one model.
func NewClient(p Provider, mc registry.ModelConfig) core.LLMClient {
	return core.LLMClientFunc(func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		if req.Model == "" {
			req.Model = mc.ModelName()
		}
		return p.Chat(ctx, mc, req)
	})
}
