package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// Encoder represents a token encoder for a specific model
type Encoder interface {
	Encode(text string) ([]int, error)
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &TiktokenEncoder{
		encoding: encoding,
	}, nil
}

// Encode converts text to tokens
func (e *TiktokenEncoder) Encode(text string) ([]int, error) {
	return e.encoding.Encode(text, nil, nil), nil
}

// Decode converts tokens to text
func (e *TiktokenEncoder) Decode(tokens []int) (string, error) {
	return e.encoding.Decode(tokens), nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	return len(e.encoding.Encode(text, nil, nil)), nil
}

// MockEncoder implements Encoder with simple character-based counting
type MockEncoder struct{}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Encode converts text to mock tokens (character-based)
func (e *MockEncoder) Encode(text string) ([]int, error) {
	count, _ := e.Count(text)
	tokens := make([]int, count)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens, nil
}

// Count returns the number of tokens in text (~4 characters per token, at least 1)
func (e *MockEncoder) Count(text string) (int, error) {
	count := (len(text) + 3) / 4
	if count < 1 {
		count = 1
	}
	return count, nil
}

// lazyEncoder loads a tiktoken encoding on first use. The BPE ranks are
// fetched over the network, so a failed load falls back to the mock encoder.
type lazyEncoder struct {
	name     string
	once     sync.Once
	encoder  Encoder
	fallback Encoder
}

func (l *lazyEncoder) load() Encoder {
	l.once.Do(func() {
		if enc, err := NewTiktokenEncoder(l.name); err == nil {
			l.encoder = enc
		} else {
			l.encoder = l.fallback
		}
	})
	return l.encoder
}

func (l *lazyEncoder) Encode(text string) ([]int, error) { return l.load().Encode(text) }
func (l *lazyEncoder) Count(text string) (int, error)    { return l.load().Count(text) }

// EncoderRegistry manages model-to-encoder mappings. Lookups match the exact
// model name first, then the longest registered prefix.
type EncoderRegistry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	prefixes map[string]Encoder
	fallback Encoder
}

// NewEncoderRegistry creates a new encoder registry
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		prefixes: make(map[string]Encoder),
		fallback: NewMockEncoder(),
	}
}

// RegisterEncoder registers an encoder for a model
func (r *EncoderRegistry) RegisterEncoder(modelID string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[modelID] = encoder
}

// RegisterPrefix registers an encoder for every model whose name starts with prefix
func (r *EncoderRegistry) RegisterPrefix(prefix string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = encoder
}

// GetEncoder returns the encoder for a model, or fallback if not found
func (r *EncoderRegistry) GetEncoder(modelID string) Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if encoder, exists := r.encoders[modelID]; exists {
		return encoder
	}
	best := ""
	var found Encoder
	for prefix, enc := range r.prefixes {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best, found = prefix, enc
		}
	}
	if found != nil {
		return found
	}
	return r.fallback
}

// CountTokens counts tokens in text using the appropriate encoder
func (r *EncoderRegistry) CountTokens(modelID, text string) (int, error) {
	return r.GetEncoder(modelID).Count(text)
}

// CountMessages counts tokens across chat messages
func (r *EncoderRegistry) CountMessages(modelID string, messages []llm.Message) (int, error) {
	total := 0
	for _, message := range messages {
		count, err := r.CountTokens(modelID, message.Content)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// GetDefaultRegistry returns a registry with common model encoders.
// OpenAI and Anthropic models use cl100k_base, loaded lazily.
func GetDefaultRegistry() *EncoderRegistry {
	registry := NewEncoderRegistry()

	cl100k := &lazyEncoder{name: "cl100k_base", fallback: registry.fallback}
	for _, prefix := range []string{"gpt-", "text-embedding-", "claude-"} {
		registry.RegisterPrefix(prefix, cl100k)
	}

	for _, model := range []string{"llama3.2", "codellama", "mistral", "mixtral"} {
		registry.RegisterEncoder(model, NewMockEncoder())
	}

	return registry
}
