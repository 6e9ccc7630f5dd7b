package simulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"agentarium/internal/evaluation"
	"agentarium/internal/models"
	"agentarium/internal/monitoring"

	"github.com/jinzhu/gorm"
)

// ErrAgentNotFound is returned when an operation names an agent the owning
// user does not have.
var ErrAgentNotFound = errors.New("agent not found")

// Manager owns one simulation loop for one authenticated session. All agent
// rows it touches are scoped to the owning user; two sessions never share a
// Manager, runtime state or world context.
//
// The loop ticks on a fixed period. Commands (stop, reset, terminate, world
// updates) arrive concurrently from the session's read pump, so the running
// status is re-checked after every store or generator call before further
// side effects are committed.
type Manager struct {
	db       *gorm.DB
	gen      Generator
	out      Broadcaster
	monitor  *monitoring.Monitor
	userID   string
	interval time.Duration

	mu      sync.Mutex
	status  string
	world   WorldContext
	states  map[string]*AgentState
	metrics Metrics
	stopCh  chan struct{}
}

// NewManager creates a simulation manager bound to one user. The generator
// and broadcaster are injected so the loop can run against fakes in tests.
func NewManager(db *gorm.DB, gen Generator, out Broadcaster, monitor *monitoring.Monitor, userID string, interval time.Duration) *Manager {
	return &Manager{
		db:       db,
		gen:      gen,
		out:      out,
		monitor:  monitor,
		userID:   userID,
		interval: interval,
		status:   models.AgentStatusIdle,
		world:    DefaultWorldContext(),
		states:   make(map[string]*AgentState),
	}
}

// Status returns the current simulation status
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Metrics returns a snapshot of the session metrics
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Start transitions the user's idle agents to running and arms the tick
// loop. Calling Start while already running or paused is a logged no-op;
// at most one loop is ever armed per manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status != models.AgentStatusIdle {
		status := m.status
		m.mu.Unlock()
		log.Printf("[SimulationManager] simulation is already %s, ignoring start", status)
		return nil
	}
	m.status = models.AgentStatusRunning
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	var idleAgents []models.Agent
	if err := m.db.Where("status = ? AND user_id = ?", models.AgentStatusIdle, m.userID).Find(&idleAgents).Error; err != nil {
		m.mu.Lock()
		m.status = models.AgentStatusIdle
		m.stopCh = nil
		m.mu.Unlock()
		close(stopCh)
		return fmt.Errorf("failed to load idle agents: %w", err)
	}

	for _, agent := range idleAgents {
		if err := m.updateAgentStatus(agent.ID, models.AgentStatusRunning); err != nil {
			log.Printf("[SimulationManager] failed to update agent status: %v", err)
		}
	}

	log.Printf("[SimulationManager] starting simulation loop for user %s", m.userID)
	go m.loop(ctx, stopCh)
	return nil
}

// loop fires runTick every interval until stopped or the session context ends
func (m *Manager) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.runTick(ctx)
		}
	}
}

// runTick executes one tick. A failure outside the per-agent loop is logged
// as an unscoped error; the ticker stays armed and the loop self-heals on
// the next tick.
func (m *Manager) runTick(ctx context.Context) {
	if m.Status() != models.AgentStatusRunning {
		log.Printf("[SimulationManager] skipping tick - simulation status: %s", m.Status())
		return
	}

	if err := m.tick(ctx); err != nil {
		log.Printf("[SimulationManager] error in simulation loop: %v", err)
		m.appendLog("", models.LogTypeError, fmt.Sprintf("Simulation error: %v", err))
	}
	m.monitor.CountTick()
}

// tick processes every running agent for this user exactly once, in order.
// A single agent's failure is logged and does not abort the others.
func (m *Manager) tick(ctx context.Context) error {
	var runningAgents []models.Agent
	if err := m.db.Where("status = ? AND user_id = ?", models.AgentStatusRunning, m.userID).Find(&runningAgents).Error; err != nil {
		return fmt.Errorf("failed to load running agents: %w", err)
	}

	log.Printf("[SimulationManager] processing %d running agents", len(runningAgents))
	m.publishMetrics(len(runningAgents))

	for i := range runningAgents {
		if m.Status() != models.AgentStatusRunning {
			return nil
		}
		agent := &runningAgents[i]
		if err := m.processAgent(ctx, agent, runningAgents); err != nil {
			log.Printf("[SimulationManager] error processing agent %s: %v", agent.ID, err)
			m.appendLog(agent.ID, models.LogTypeError, fmt.Sprintf("Error processing agent: %v", err))
		}
	}
	return nil
}

// processAgent runs one agent's turn: classify, generate, persist memory,
// compute interactions against the cohort, then broadcast state and the
// behavior log. If the agent's persisted status changed while the turn was
// in flight, its broadcasts are skipped but the tick continues.
func (m *Manager) processAgent(ctx context.Context, agent *models.Agent, cohort []models.Agent) error {
	start := time.Now()
	state := m.stateFor(agent.ID)

	pattern := ClassifyBehavior(agent.Goals)
	behavior, ok, err := m.processBehavior(ctx, agent, pattern)
	if err != nil {
		return err
	}
	if !ok {
		// Simulation stopped mid-turn; commit nothing further for this agent.
		return nil
	}

	for i := range cohort {
		other := &cohort[i]
		if other.ID == agent.ID || !Interacts(agent.Goals, other.Goals) {
			continue
		}

		m.mu.Lock()
		state.Connections[other.ID] = struct{}{}
		state.InteractionCount++
		state.LastInteractionTime = time.Now()
		m.metrics.TotalInteractions++
		m.mu.Unlock()
		m.monitor.CountInteraction()

		if err := m.recordInteraction(agent, other, behavior); err != nil {
			log.Printf("[SimulationManager] failed to record interaction: %v", err)
		}
		m.appendLog(agent.ID, models.LogTypeInteraction,
			fmt.Sprintf("Agent %s is interacting with %s - %s", agent.Name, other.Name, behavior))
	}

	elapsed := time.Since(start)
	m.mu.Lock()
	state.CurrentTask = behavior
	state.ProcessingTime = elapsed
	state.GoalProgress = evaluation.ScoreResponse(agent.Goals, behavior)
	connections := state.connectionIDs()
	m.mu.Unlock()
	m.monitor.ObserveProcessing(elapsed)

	// Status may have changed while this turn was suspended on the store or
	// the generator; re-read before broadcasting.
	var current models.Agent
	if err := m.db.Where("id = ? AND user_id = ?", agent.ID, m.userID).First(&current).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			log.Printf("[SimulationManager] agent %s disappeared, skipping updates", agent.ID)
			return nil
		}
		return fmt.Errorf("failed to re-read agent: %w", err)
	}
	if current.Status != models.AgentStatusRunning {
		log.Printf("[SimulationManager] agent %s is no longer running, skipping updates", agent.ID)
		return nil
	}

	m.out.Broadcast(Event{Type: EventAgentState, Payload: map[string]interface{}{
		"id":          agent.ID,
		"name":        agent.Name,
		"status":      agent.Status,
		"currentTask": behavior,
		"connections": connections,
	}})

	m.appendLog(agent.ID, models.LogTypeBehavior,
		fmt.Sprintf("Agent %s - %s while pursuing: %s", agent.Name, behavior, agent.Goals))
	return nil
}

// processBehavior invokes the text generator for one agent and persists the
// updated memory. The returned bool is false when the simulation stopped
// while the call was in flight; in that case no further side effects may be
// committed for this agent.
func (m *Manager) processBehavior(ctx context.Context, agent *models.Agent, pattern BehaviorPattern) (string, bool, error) {
	if m.Status() != models.AgentStatusRunning {
		log.Printf("[SimulationManager] skipping behavior processing - simulation status: %s", m.Status())
		return "", false, nil
	}

	m.mu.Lock()
	worldPrompt := m.world.clone().ComposeContext(pattern)
	m.mu.Unlock()

	response, updatedMemory, err := m.gen.Generate(ctx, agent, worldPrompt, agent.Memory)
	if err != nil {
		return "", false, fmt.Errorf("failed to generate response: %w", err)
	}

	// The generator call is a suspension point; stop() may have run.
	if m.Status() != models.AgentStatusRunning {
		return "", false, nil
	}

	if err := m.db.Model(&models.Agent{}).
		Where("id = ? AND user_id = ?", agent.ID, m.userID).
		Update("memory", models.JSONMap(updatedMemory)).Error; err != nil {
		return "", false, fmt.Errorf("failed to persist agent memory: %w", err)
	}

	// Same again after the write.
	if m.Status() != models.AgentStatusRunning {
		return "", false, nil
	}

	m.UpdateWorldState(map[string]interface{}{
		"lastAgentAction": map[string]interface{}{
			"agentId":   agent.ID,
			"agentName": agent.Name,
			"action":    response,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})

	return fmt.Sprintf("[%s] %s", pattern, response), true, nil
}

// Stop pauses the simulation. The status flips before anything else so an
// in-flight tick stops committing state transitions, then the loop is torn
// down, runtime state cleared and the user's running agents persisted to
// paused.
func (m *Manager) Stop() error {
	log.Printf("[SimulationManager] stopping simulation for user %s", m.userID)

	m.mu.Lock()
	m.status = models.AgentStatusPaused
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.states = make(map[string]*AgentState)
	m.mu.Unlock()

	if err := m.db.Model(&models.Agent{}).
		Where("status = ? AND user_id = ?", models.AgentStatusRunning, m.userID).
		Update("status", models.AgentStatusPaused).Error; err != nil {
		return fmt.Errorf("failed to pause running agents: %w", err)
	}

	m.publishMetrics(0)
	m.out.Broadcast(Event{Type: EventStatus, Payload: models.AgentStatusPaused})
	m.appendLog("", models.LogTypeInfo, "Simulation paused - all agents stopped")
	return nil
}

// Reset stops a running simulation, returns every running or paused agent of
// this user to idle with cleared memory, and zeroes all metrics.
func (m *Manager) Reset() error {
	if m.Status() == models.AgentStatusRunning {
		if err := m.Stop(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.status = models.AgentStatusIdle
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.states = make(map[string]*AgentState)
	m.metrics = Metrics{}
	metrics := m.metrics
	m.mu.Unlock()

	if err := m.db.Model(&models.Agent{}).
		Where("status IN (?) AND user_id = ?", []string{models.AgentStatusRunning, models.AgentStatusPaused}, m.userID).
		Updates(map[string]interface{}{
			"status": models.AgentStatusIdle,
			"memory": models.JSONMap{},
		}).Error; err != nil {
		return fmt.Errorf("failed to reset agents: %w", err)
	}

	m.monitor.SetActiveAgents(0)
	m.out.Broadcast(Event{Type: EventStatus, Payload: models.AgentStatusIdle})
	m.out.Broadcast(Event{Type: EventMetrics, Payload: metrics})
	m.appendLog("", models.LogTypeInfo, "Simulation fully reset - all agents and states cleared")
	return nil
}

// Close tears the manager down when the session disconnects. No tick fires
// afterwards and nothing is persisted or broadcast.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	if m.status == models.AgentStatusRunning {
		m.status = models.AgentStatusPaused
	}
}

// UpdateWorldState merges the given keys into the world-context state, stamps
// the update time and broadcasts the full world context. The state lives
// only in memory for the session's lifetime.
func (m *Manager) UpdateWorldState(updates map[string]interface{}) {
	m.mu.Lock()
	for k, v := range updates {
		m.world.State[k] = v
	}
	m.world.State["lastUpdated"] = time.Now().UTC().Format(time.RFC3339)
	world := m.world.clone()
	m.mu.Unlock()

	m.out.Broadcast(Event{Type: EventWorldState, Payload: world})
}

// WorldContext returns a copy of the session's current world context
func (m *Manager) WorldContext() WorldContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world.clone()
}

// AgentExport aggregates everything known about one agent: its row, all
// interactions it took part in on either side, and its scoped logs.
type AgentExport struct {
	Agent        models.Agent              `json:"agent"`
	Interactions []models.AgentInteraction `json:"interactions"`
	Logs         []models.SimulationLog    `json:"logs"`
}

// ExportAgentData builds the export bundle for one of this user's agents.
// Read-only; an unknown agent id is an error.
func (m *Manager) ExportAgentData(agentID string) (*AgentExport, error) {
	return ExportAgent(m.db, m.userID, agentID)
}

// ExportAgent is the store-level export used by both the session channel and
// the REST API.
func ExportAgent(db *gorm.DB, userID, agentID string) (*AgentExport, error) {
	var agent models.Agent
	if err := db.Where("id = ? AND user_id = ?", agentID, userID).First(&agent).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("agent with ID %s: %w", agentID, ErrAgentNotFound)
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	var interactions []models.AgentInteraction
	if err := db.Where("source_agent_id = ? OR target_agent_id = ?", agentID, agentID).
		Find(&interactions).Error; err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	var logs []models.SimulationLog
	if err := db.Where("agent_id = ?", agentID).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}

	return &AgentExport{Agent: agent, Interactions: interactions, Logs: logs}, nil
}

// TerminateAgent returns one agent to idle with cleared memory, drops its
// runtime state and re-broadcasts the full agent list. Terminating an agent
// this user does not own is an error, not a silent no-op.
func (m *Manager) TerminateAgent(agentID string) error {
	var agent models.Agent
	if err := m.db.Where("id = ? AND user_id = ?", agentID, m.userID).First(&agent).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return fmt.Errorf("agent with ID %s: %w", agentID, ErrAgentNotFound)
		}
		return fmt.Errorf("failed to load agent: %w", err)
	}

	if err := m.db.Model(&models.Agent{}).
		Where("id = ? AND user_id = ?", agentID, m.userID).
		Updates(map[string]interface{}{
			"status": models.AgentStatusIdle,
			"memory": models.JSONMap{},
		}).Error; err != nil {
		return fmt.Errorf("failed to terminate agent: %w", err)
	}

	m.mu.Lock()
	delete(m.states, agentID)
	active := len(m.states)
	m.mu.Unlock()

	m.appendLog(agentID, models.LogTypeInfo, "Agent terminated and reset to idle state")
	m.publishMetrics(active)
	return m.BroadcastAgentList()
}

// BroadcastAgentList sends the user's full agent list to the client
func (m *Manager) BroadcastAgentList() error {
	var agents []models.Agent
	if err := m.db.Where("user_id = ?", m.userID).Find(&agents).Error; err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}
	m.out.Broadcast(Event{Type: EventAgents, Payload: agents})
	return nil
}

// AppendLog persists a log row and broadcasts it. agentID may be empty for
// system-level entries. Used by the session channel for command outcomes.
func (m *Manager) AppendLog(agentID, logType, message string) {
	m.appendLog(agentID, logType, message)
}

// appendLog writes the log row and emits the log event. A store failure here
// is itself only logged; log emission must never take the loop down.
func (m *Manager) appendLog(agentID, logType, message string) {
	entry := models.SimulationLog{
		AgentID:   agentID,
		Type:      logType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := m.db.Create(&entry).Error; err != nil {
		log.Printf("[SimulationManager] failed to persist log: %v", err)
	}
	m.out.Broadcast(Event{Type: EventLog, Payload: entry})
}

// updateAgentStatus persists one agent's status and logs the transition
func (m *Manager) updateAgentStatus(agentID, status string) error {
	if err := m.db.Model(&models.Agent{}).
		Where("id = ? AND user_id = ?", agentID, m.userID).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	m.appendLog(agentID, models.LogTypeInfo, fmt.Sprintf("Agent status changed to %s", status))
	return nil
}

// recordInteraction persists one fired interaction for later export
func (m *Manager) recordInteraction(agent, other *models.Agent, behavior string) error {
	interaction := models.AgentInteraction{
		SourceAgentID: agent.ID,
		TargetAgentID: other.ID,
		Prompt:        agent.Goals,
		Response:      behavior,
		Metadata:      models.JSONMap{"targetGoals": other.Goals},
	}
	return m.db.Create(&interaction).Error
}

// stateFor lazily creates the runtime state for an agent
func (m *Manager) stateFor(agentID string) *AgentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[agentID]
	if !ok {
		state = &AgentState{
			ID:                  agentID,
			LastInteractionTime: time.Now(),
			Connections:         make(map[string]struct{}),
		}
		m.states[agentID] = state
	}
	return state
}

// publishMetrics recomputes the derived metrics for the given active agent
// count and broadcasts the full metrics object.
func (m *Manager) publishMetrics(activeAgents int) {
	m.mu.Lock()
	m.metrics.ActiveAgents = activeAgents
	var total time.Duration
	var progress float64
	for _, state := range m.states {
		total += state.ProcessingTime
		progress += state.GoalProgress
	}
	if len(m.states) > 0 {
		m.metrics.AverageProcessingTime = float64(total.Milliseconds()) / float64(len(m.states))
		m.metrics.GoalCompletionRate = progress / float64(len(m.states))
	} else {
		m.metrics.AverageProcessingTime = 0
		m.metrics.GoalCompletionRate = 0
	}
	metrics := m.metrics
	m.mu.Unlock()

	m.monitor.SetActiveAgents(activeAgents)
	m.monitor.SetGoalCompletion(metrics.GoalCompletionRate)
	m.out.Broadcast(Event{Type: EventMetrics, Payload: metrics})
}
