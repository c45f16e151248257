// Package auth issues and validates therapist session tokens. Tokens are
// HMAC-signed JWTs that expire a fixed number of days after issuance; idle
// time does not extend a session.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Identity is the authenticated therapist attached to a request.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name"`
}

// Sessions issues, validates, and revokes session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry, pruned lazily
}

// NewSessions builds a session manager. ttlDays is counted from issuance.
func NewSessions(secret []byte, ttlDays int) *Sessions {
	return &Sessions{
		secret:  secret,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// Issue signs a new session token for the therapist.
func (s *Sessions) Issue(id Identity) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ID:        fmt.Sprintf("%d-%s", now.UnixNano(), id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		DisplayName: id.DisplayName,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses the token and returns the identity, or ErrInvalidSession
// for anything not worth distinguishing to a client.
func (s *Sessions) Validate(tokenStr string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	if s.isRevoked(claims.ID) {
		return nil, ErrInvalidSession
	}
	return &Identity{ID: claims.Subject, DisplayName: claims.DisplayName}, nil
}

// Revoke invalidates the token for the remainder of its lifetime. Revoking an
// unparsable token is a no-op.
func (s *Sessions) Revoke(tokenStr string) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid || claims.ExpiresAt == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.revoked[claims.ID] = claims.ExpiresAt.Time
}

func (s *Sessions) isRevoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	_, ok := s.revoked[tokenID]
	return ok
}

// prune drops revocation entries for tokens that have expired anyway.
// Callers hold s.mu.
func (s *Sessions) prune() {
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
}
