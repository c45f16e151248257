package therapist

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("therapist not found")
	ErrExists   = errors.New("email already registered")
)

// Repository stores therapist accounts.
type Repository interface {
	Create(ctx context.Context, t *Therapist) error
	GetByEmail(ctx context.Context, email string) (*Therapist, error)
	GetByID(ctx context.Context, id string) (*Therapist, error)
}
