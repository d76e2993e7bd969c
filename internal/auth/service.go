package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/gestia-erp/gestia/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions *shared.SessionStore
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *shared.SessionStore) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// Authenticate validates credentials and mints a session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*shared.Session, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return s.sessions.Create(ctx, user.ID, user.CompanyID)
}

// Logout destroys the session for token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// Resolve maps a bearer token to its session.
func (s *Service) Resolve(ctx context.Context, token string) (*shared.Session, error) {
	return s.sessions.Load(ctx, token)
}
