package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/skillforge/pkg/limiter"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/registry"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs
// (OpenAI, OpenRouter, vLLM, LM Studio).
type OpenAIProvider struct {
	*BaseProvider
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(baseURL, apiKey string) *OpenAIProvider {
	return NewOpenAIProviderWithClient(baseURL, apiKey, nil)
}

// NewOpenAIProviderWithClient creates a provider that sends requests through httpClient.
func NewOpenAIProviderWithClient(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(),
		client:       openai.NewClientWithConfig(config),
	}
}

// Chat performs chat completion using OpenAI API
func (p *OpenAIProvider) Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	model := req.Model
	if model == "" {
		model = mc.ModelName()
	}

	// go-openai drops a zero temperature from the payload.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	response, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return llm.ChatResponse{}, classifyOpenAIError(err)
	}
	if len(response.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai chat completion returned no choices")
	}

	text := response.Choices[0].Message.Content
	usage := llm.Usage{
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = p.EstimateUsage(model, req.Messages, text)
	}

	return llm.ChatResponse{
		Text:         text,
		Usage:        usage,
		Model:        mc.ID,
		Provider:     mc.Provider,
		FinishReason: string(response.Choices[0].FinishReason),
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &limiter.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &limiter.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Cause: err}
	}
	return fmt.Errorf("openai chat completion failed: %w", err)
}
