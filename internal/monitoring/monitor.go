package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentarium_simulation_ticks_total",
		Help: "Total number of simulation ticks executed across all sessions.",
	})
	interactionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentarium_agent_interactions_total",
		Help: "Total number of agent interactions fired across all sessions.",
	})
	activeAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentarium_active_agents",
		Help: "Number of agents processed in the most recent tick.",
	})
	processingSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentarium_agent_processing_seconds",
		Help:    "Per-agent processing duration within a tick.",
		Buckets: prometheus.DefBuckets,
	})
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentarium_active_sessions",
		Help: "Number of connected dashboard sessions.",
	})
	goalCompletion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agentarium_goal_completion_rate",
		Help: "Mean goal-progress score of the agents in the latest tick.",
	})
)

func init() {
	prometheus.MustRegister(ticksTotal, interactionsTotal, activeAgents, processingSeconds, activeSessions, goalCompletion)
}

// Monitor collects and provides metrics for the dashboard
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	// Create a copy to avoid concurrent map access
	metrics := make(map[string]interface{}, len(m.metrics))
	for k, v := range m.metrics {
		metrics[k] = v
	}

	// Add system metrics
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}

// CountTick records one completed simulation tick
func (m *Monitor) CountTick() {
	ticksTotal.Inc()
	m.RecordMetric("last_tick", time.Now().Format(time.RFC3339))
}

// CountInteraction records one fired agent interaction
func (m *Monitor) CountInteraction() {
	interactionsTotal.Inc()
}

// SetActiveAgents records the active agent count of the latest tick
func (m *Monitor) SetActiveAgents(count int) {
	activeAgents.Set(float64(count))
	m.RecordMetric("active_agents", count)
}

// SetGoalCompletion records the mean goal-progress score of the latest tick
func (m *Monitor) SetGoalCompletion(rate float64) {
	goalCompletion.Set(rate)
	m.RecordMetric("goal_completion_rate", rate)
}

// ObserveProcessing records one agent's per-tick processing duration
func (m *Monitor) ObserveProcessing(d time.Duration) {
	processingSeconds.Observe(d.Seconds())
}

// SessionOpened records a new dashboard session
func (m *Monitor) SessionOpened() {
	activeSessions.Inc()
}

// SessionClosed records a closed dashboard session
func (m *Monitor) SessionClosed() {
	activeSessions.Dec()
}
