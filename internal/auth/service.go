package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/forecourt-io/forecourt/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials and returns the actor
// that downstream authorization predicates operate on.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*shared.Actor, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive || !user.Role.Valid() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return &shared.Actor{
		UserID:   user.ID,
		Name:     user.FullName,
		Role:     user.Role,
		Stations: user.Stations,
	}, nil
}

// RecordLogin persists the login trail.
func (s *Service) RecordLogin(ctx context.Context, userID int64, at time.Time, ip, ua string) error {
	return s.repo.RecordLogin(ctx, userID, at, ip, ua)
}
