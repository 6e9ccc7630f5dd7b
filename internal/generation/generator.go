package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentarium/internal/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMGenerator produces agent actions through a langchaingo model. It
// implements simulation.Generator; the model is injected so the simulation
// can run against a fake in tests.
type LLMGenerator struct {
	model     llms.LLM
	maxTokens int
}

// NewLLMGenerator creates a generator backed by the given model
func NewLLMGenerator(model llms.LLM) *LLMGenerator {
	return &LLMGenerator{
		model:     model,
		maxTokens: 1024,
	}
}

// NewOpenAIGenerator creates a generator backed by an OpenAI-compatible model
func NewOpenAIGenerator(model, apiKey string) (*LLMGenerator, error) {
	llm, err := openai.New(
		openai.WithModel(model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return NewLLMGenerator(llm), nil
}

// Generate builds the in-character prompt for the agent, invokes the model
// and folds the response into the agent's memory under "lastInteraction".
func (g *LLMGenerator) Generate(ctx context.Context, agent *models.Agent, worldContext string, memory map[string]interface{}) (string, map[string]interface{}, error) {
	memoryJSON, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		memoryJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(`You are an AI agent named %s with the following description: %s
Your goals are: %s

Previous context and memory:
%s

Current context:
%s

Respond in character as the AI agent, considering your goals and previous context. Your response should be focused and concise.`,
		agent.Name, agent.Description, agent.Goals, memoryJSON, worldContext)

	response, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", nil, fmt.Errorf("text generation failed: %w", err)
	}

	updated := make(map[string]interface{}, len(memory)+1)
	for k, v := range memory {
		updated[k] = v
	}
	updated["lastInteraction"] = map[string]interface{}{
		"context":   worldContext,
		"response":  response,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	return response, updated, nil
}
