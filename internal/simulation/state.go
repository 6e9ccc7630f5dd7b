package simulation

import (
	"context"
	"time"

	"agentarium/internal/models"
)

// Metrics is the session's in-memory metrics object, recomputed and
// broadcast every tick. GoalCompletionRate is the mean of the per-agent
// goal-progress scores of the current run.
type Metrics struct {
	TotalInteractions     int     `json:"totalInteractions"`
	ActiveAgents          int     `json:"activeAgents"`
	GoalCompletionRate    float64 `json:"goalCompletionRate"`
	AverageProcessingTime float64 `json:"averageProcessingTime"`
}

// AgentState is the per-agent runtime state kept for the lifetime of a run.
// It is created lazily the first tick an agent is observed running and is
// discarded on stop/reset; the persisted agent row remains the source of
// truth for whether the agent is running.
type AgentState struct {
	ID                  string
	CurrentTask         string
	InteractionCount    int
	LastInteractionTime time.Time
	ProcessingTime      time.Duration
	GoalProgress        float64
	Connections         map[string]struct{}
}

// connectionIDs returns the peer ids this agent interacted with this session
func (s *AgentState) connectionIDs() []string {
	ids := make([]string, 0, len(s.Connections))
	for id := range s.Connections {
		ids = append(ids, id)
	}
	return ids
}

// Generator produces an agent's next action text. Given the agent's identity,
// the composed world-context string and the agent's memory, it returns the
// generated text and the updated memory to persist. Implementations may be
// slow and may fail; the caller treats both as per-agent transient errors.
type Generator interface {
	Generate(ctx context.Context, agent *models.Agent, worldContext string, memory map[string]interface{}) (response string, updatedMemory map[string]interface{}, err error)
}
