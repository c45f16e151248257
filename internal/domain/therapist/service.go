package therapist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emdr/protokoll/internal/platform/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles registration and login against the account store.
type Service struct {
	repo     Repository
	sessions *auth.Sessions
	now      func() time.Time
}

func NewService(repo Repository, sessions *auth.Sessions) *Service {
	return &Service{repo: repo, sessions: sessions, now: time.Now}
}

// AuthResult is returned on successful register/login.
type AuthResult struct {
	Token     string     `json:"token"`
	Therapist *Therapist `json:"therapist"`
}

// Register creates an account and issues a first session.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if displayName == "" {
		displayName = email
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	t := &Therapist{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return s.issue(t)
}

// Login checks credentials and issues a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	t, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(t.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(t)
}

// Logout revokes the session token.
func (s *Service) Logout(token string) {
	s.sessions.Revoke(token)
}

// Get returns the account for an authenticated identity.
func (s *Service) Get(ctx context.Context, id string) (*Therapist, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) issue(t *Therapist) (*AuthResult, error) {
	token, err := s.sessions.Issue(auth.Identity{ID: t.ID, DisplayName: t.DisplayName})
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Therapist: t}, nil
}
