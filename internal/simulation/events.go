package simulation

// Outbound event types carried on the session channel.
const (
	EventAgents       = "agents"
	EventAgentState   = "agentState"
	EventLog          = "log"
	EventStatus       = "status"
	EventMetrics      = "metrics"
	EventWorldState   = "worldState"
	EventWorldContext = "worldContext"
	EventError        = "error"
)

// Event is a single typed message sent to the dashboard client
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcaster delivers events to the session's client. Implementations must
// be safe for concurrent use; the simulation loop and command handlers both
// emit events.
type Broadcaster interface {
	Broadcast(event Event)
}
