package therapist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type therapistRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &therapistRepoPG{pool: pool}
}

const therapistCols = `id, email, display_name, password_hash, created_at`

func (r *therapistRepoPG) scanRow(row pgx.Row) (*Therapist, error) {
	var t Therapist
	err := row.Scan(&t.ID, &t.Email, &t.DisplayName, &t.PasswordHash, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan therapist: %w", err)
	}
	return &t, nil
}

func (r *therapistRepoPG) Create(ctx context.Context, t *Therapist) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO therapists (id, email, display_name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.Email, t.DisplayName, t.PasswordHash, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert therapist: %w", err)
	}
	return nil
}

func (r *therapistRepoPG) GetByEmail(ctx context.Context, email string) (*Therapist, error) {
	return r.scanRow(r.pool.QueryRow(ctx,
		`SELECT `+therapistCols+` FROM therapists WHERE email = $1`, email))
}

func (r *therapistRepoPG) GetByID(ctx context.Context, id string) (*Therapist, error) {
	return r.scanRow(r.pool.QueryRow(ctx,
		`SELECT `+therapistCols+` FROM therapists WHERE id = $1`, id))
}
