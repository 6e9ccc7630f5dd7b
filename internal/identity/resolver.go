package identity

import (
	"fmt"

	"agentarium/internal/models"

	"github.com/jinzhu/gorm"
)

// Resolver turns an opaque user identifier into a user record. A session
// channel is refused when resolution fails.
type Resolver interface {
	ResolveUser(id string) (*models.User, error)
}

// DBResolver resolves user identifiers against the users table
type DBResolver struct {
	db *gorm.DB
}

// NewDBResolver creates a database-backed resolver
func NewDBResolver(db *gorm.DB) *DBResolver {
	return &DBResolver{db: db}
}

// ResolveUser loads the user with the given id
func (r *DBResolver) ResolveUser(id string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("user %s not found", id)
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return &user, nil
}
