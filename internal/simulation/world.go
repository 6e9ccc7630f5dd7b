package simulation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorldContext is the shared descriptive and mutable-state object all of a
// session's agents act within. It lives only for the session's lifetime and
// is never persisted.
type WorldContext struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Rules       []string               `json:"rules"`
	State       map[string]interface{} `json:"state"`
}

// DefaultWorldContext returns the world a new session starts with
func DefaultWorldContext() WorldContext {
	return WorldContext{
		Name:        "Default World",
		Description: "A simulation environment for AI agents to interact and evolve",
		Rules: []string{
			"Agents must collaborate to achieve goals",
			"Agents should respect resource constraints",
		},
		State: map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// ComposeContext renders the world as the prompt fragment handed to the text
// generator for an agent acting under the given behavior pattern.
func (w WorldContext) ComposeContext(pattern BehaviorPattern) string {
	state, err := json.MarshalIndent(w.State, "", "  ")
	if err != nil {
		state = []byte("{}")
	}

	return fmt.Sprintf(`World Context: %s
%s
Rules: %s

Current State:
%s

You are currently in %s mode. Consider your goals, the world context, and previous interactions to determine your next action.`,
		w.Name, w.Description, strings.Join(w.Rules, "\n"), state, pattern)
}

// clone returns a deep-enough copy for handing to another goroutine; rules
// are copied, state values are shared but never mutated in place.
func (w WorldContext) clone() WorldContext {
	c := w
	c.Rules = append([]string(nil), w.Rules...)
	c.State = make(map[string]interface{}, len(w.State))
	for k, v := range w.State {
		c.State[k] = v
	}
	return c
}
