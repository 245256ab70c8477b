// Package mock provides a scripted core.LLMClient for tests and offline runs.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// Responder produces the completion for a request.
type Responder func(req llm.ChatRequest) (string, error)

type rule struct {
	match   func(req llm.ChatRequest) bool
	respond Responder
}

// Client answers chat requests from, in order: a forced error, the reply
// queue, the first matching rule, the default responder. It records every
// request and is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	err      error
	queue    []string
	rules    []rule
	fallback Responder
	delay    time.Duration
	requests []llm.ChatRequest
}

// New creates a client whose default reply is the empty string.
func New() *Client {
	return &Client{fallback: func(llm.ChatRequest) (string, error) { return "", nil }}
}

// On replies with text when the user message contains substr.
func (c *Client) On(substr, text string) *Client {
	return c.OnFunc(func(req llm.ChatRequest) bool {
		return strings.Contains(req.Content(llm.RoleUser), substr)
	}, func(llm.ChatRequest) (string, error) { return text, nil })
}

// OnSystem replies with text when the system message contains substr.
func (c *Client) OnSystem(substr, text string) *Client {
	return c.OnFunc(func(req llm.ChatRequest) bool {
		return strings.Contains(req.Content(llm.RoleSystem), substr)
	}, func(llm.ChatRequest) (string, error) { return text, nil })
}

// OnFunc registers a rule; rules are tried in registration order.
func (c *Client) OnFunc(match func(req llm.ChatRequest) bool, respond Responder) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{match: match, respond: respond})
	return c
}

// Enqueue appends replies that are consumed one per call before any rule.
func (c *Client) Enqueue(texts ...string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, texts...)
	return c
}

// Default sets the responder used when nothing else applies.
func (c *Client) Default(respond Responder) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = respond
	return c
}

// Reply sets a constant default reply.
func (c *Client) Reply(text string) *Client {
	return c.Default(func(llm.ChatRequest) (string, error) { return text, nil })
}

// FailWith makes every call fail with err; nil clears it.
func (c *Client) FailWith(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

// WithDelay makes every call wait d or until the context is done.
func (c *Client) WithDelay(d time.Duration) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return c
}

// Chat implements core.LLMClient.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	delay, err := c.delay, c.err
	respond := c.pick(req)
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return llm.ChatResponse{}, err
	}

	text, err := respond(req)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.Content) / 4
	}
	completion := len(text) / 4
	return llm.ChatResponse{
		Text:         text,
		Model:        req.Model,
		Provider:     "mock",
		FinishReason: "stop",
		Usage: llm.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// pick must be called with c.mu held.
func (c *Client) pick(req llm.ChatRequest) Responder {
	if len(c.queue) > 0 {
		text := c.queue[0]
		c.queue = c.queue[1:]
		return func(llm.ChatRequest) (string, error) { return text, nil }
	}
	for _, r := range c.rules {
		if r.match(req) {
			return r.respond
		}
	}
	return c.fallback
}

// Calls returns the number of requests received.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of every request received, in arrival order.
func (c *Client) Requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.requests...)
}

// Last returns the most recent request.
func (c *Client) Last() (llm.ChatRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return llm.ChatRequest{}, false
	}
	return c.requests[len(c.requests)-1], true
}

// Reset forgets recorded requests and queued replies; rules are kept.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
	c.queue = nil
}
