package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// Agent statuses. The database row is the source of truth for whether an
// agent participates in a simulation tick.
const (
	AgentStatusIdle    = "idle"
	AgentStatusRunning = "running"
	AgentStatusPaused  = "paused"
)

// Agent represents a deployed AI agent owned by a single user.
// Memory is an opaque blob carried between simulation ticks; it is rewritten
// on every tick while the agent is running and cleared on reset/terminate.
type Agent struct {
	ID          string    `gorm:"primary_key" json:"id"`
	Name        string    `json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Goals       string    `gorm:"type:text" json:"goals"`
	Status      string    `gorm:"default:'idle'" json:"status"`
	Metadata    JSONMap   `gorm:"type:text" json:"metadata"`
	Memory      JSONMap   `gorm:"type:text" json:"memory"`
	UserID      string    `gorm:"index" json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName sets the table name for Agent
func (Agent) TableName() string {
	return "agents"
}

// BeforeCreate assigns a UUID primary key when none is set
func (a *Agent) BeforeCreate(scope *gorm.Scope) error {
	if a.ID == "" {
		return scope.SetColumn("ID", uuid.New().String())
	}
	return nil
}

// AgentInteraction records one interaction between two agents during a tick,
// keyed by the source and target agent ids. Rows are append-only.
type AgentInteraction struct {
	ID            string    `gorm:"primary_key" json:"id"`
	SourceAgentID string    `gorm:"index" json:"sourceAgentId"`
	TargetAgentID string    `gorm:"index" json:"targetAgentId"`
	Prompt        string    `gorm:"type:text" json:"prompt"`
	Response      string    `gorm:"type:text" json:"response"`
	Metadata      JSONMap   `gorm:"type:text" json:"metadata"`
	Timestamp     time.Time `json:"timestamp"`
}

// TableName sets the table name for AgentInteraction
func (AgentInteraction) TableName() string {
	return "agent_interactions"
}

// BeforeCreate assigns a UUID primary key and a timestamp when none is set
func (i *AgentInteraction) BeforeCreate(scope *gorm.Scope) error {
	if i.ID == "" {
		if err := scope.SetColumn("ID", uuid.New().String()); err != nil {
			return err
		}
	}
	if i.Timestamp.IsZero() {
		return scope.SetColumn("Timestamp", time.Now().UTC())
	}
	return nil
}
