package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// User owns a set of agents. Every store read or write the simulation
// performs is filtered by the owning user id.
type User struct {
	ID        string    `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"unique_index" json:"username"`
	Email     string    `gorm:"unique_index" json:"email"`
	Password  string    `json:"-"`
	Role      string    `gorm:"default:'user'" json:"role"`
	Status    string    `gorm:"default:'active'" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID primary key when none is set
func (u *User) BeforeCreate(scope *gorm.Scope) error {
	if u.ID == "" {
		return scope.SetColumn("ID", uuid.New().String())
	}
	return nil
}
