package core

import (
	"context"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// LLMClient is the provider boundary: one chat completion per call.
type LLMClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// LLMClientFunc adapts a function to LLMClient.
type LLMClientFunc func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)

func (f LLMClientFunc) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return f(ctx, req)
}

type Runtime interface {
	Name() string
	RecordToRecord(ctx context.Context, rec Record, tpl Templates) (Record, error)
	BatchToBatch(ctx context.Context, batch Batch, tpl Templates) (Batch, error)
	RecordToBatch(ctx context.Context, rec Record, tpl Templates, n int) (Batch, error)
}

// Dataset is the ground-truth data source behind an environment.
type Dataset interface {
	Len() int
	Sample(ctx context.Context, n int) (Batch, error)
	Column(name string) ([]any, error)
}

type PolicyGuard interface {
	Wrap(ctx context.Context, b Budget, run func(ctx context.Context) error) error
}
