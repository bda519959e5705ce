package auth

import (
	"time"

	"github.com/voyagedesk/voyagedesk/internal/permissions"
)

// User represents a back-office staff account. Identity and role assignment
// live here; the permission profile itself belongs to the permissions core.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         permissions.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
