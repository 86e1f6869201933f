package auth

import (
	"time"

	"github.com/forecourt-io/forecourt/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Role         shared.Role
	Stations     []int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
