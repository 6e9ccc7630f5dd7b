package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// Simulation log types. Interaction and behavior entries are produced by the
// simulation loop; the rest come from command handlers and error paths.
const (
	LogTypeInfo        = "info"
	LogTypeWarning     = "warning"
	LogTypeError       = "error"
	LogTypeInteraction = "interaction"
	LogTypeBehavior    = "behavior"
)

// SimulationLog is a single append-only log row. AgentID is empty for
// system-level entries that are not scoped to one agent.
type SimulationLog struct {
	ID        string    `gorm:"primary_key" json:"id"`
	AgentID   string    `gorm:"index" json:"agentId,omitempty"`
	Type      string    `json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TableName sets the table name for SimulationLog
func (SimulationLog) TableName() string {
	return "simulation_logs"
}

// BeforeCreate assigns a UUID primary key and a timestamp when none is set
func (l *SimulationLog) BeforeCreate(scope *gorm.Scope) error {
	if l.ID == "" {
		if err := scope.SetColumn("ID", uuid.New().String()); err != nil {
			return err
		}
	}
	if l.Timestamp.IsZero() {
		return scope.SetColumn("Timestamp", time.Now().UTC())
	}
	return nil
}
