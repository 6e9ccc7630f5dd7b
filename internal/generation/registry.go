package generation

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"
)

// NewGenerator creates a generator for the configured provider. The provider
// name selects the client; model and key are passed through as-is.
func NewGenerator(provider, model, apiKey string) (*LLMGenerator, error) {
	switch provider {
	case "", "openai":
		return NewOpenAIGenerator(model, apiKey)
	case "anthropic":
		return NewAnthropicGenerator(model, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// NewAnthropicGenerator creates a generator backed by an Anthropic model
func NewAnthropicGenerator(model, apiKey string) (*LLMGenerator, error) {
	llm, err := anthropic.New(
		anthropic.WithModel(model),
		anthropic.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}
	return NewLLMGenerator(llm), nil
}
