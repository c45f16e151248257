package therapist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emdr/protokoll/internal/platform/kvstore"
)

const (
	accountKeyPrefix = "therapist:"
	emailKeyPrefix   = "therapist-email:"
)

// storedTherapist is the kv wire form. The API model hides the password hash
// from JSON; the store must keep it.
type storedTherapist struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash []byte    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type therapistRepoKV struct{ store *kvstore.Store }

// NewRepoKV stores accounts in the key-value store: the record under the id
// key, plus an email-to-id pointer for login lookups.
func NewRepoKV(store *kvstore.Store) Repository {
	return &therapistRepoKV{store: store}
}

func (r *therapistRepoKV) Create(ctx context.Context, t *Therapist) error {
	if _, ok, err := r.store.Get(ctx, emailKeyPrefix+t.Email); err != nil {
		return err
	} else if ok {
		return ErrExists
	}
	data, err := json.Marshal(storedTherapist{
		ID: t.ID, Email: t.Email, DisplayName: t.DisplayName,
		PasswordHash: t.PasswordHash, CreatedAt: t.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal therapist: %w", err)
	}
	if err := r.store.Put(ctx, accountKeyPrefix+t.ID, string(data)); err != nil {
		return err
	}
	return r.store.Put(ctx, emailKeyPrefix+t.Email, t.ID)
}

func (r *therapistRepoKV) GetByEmail(ctx context.Context, email string) (*Therapist, error) {
	id, ok, err := r.store.Get(ctx, emailKeyPrefix+email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *therapistRepoKV) GetByID(ctx context.Context, id string) (*Therapist, error) {
	raw, ok, err := r.store.Get(ctx, accountKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	var st storedTherapist
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode therapist %s: %w", id, err)
	}
	return &Therapist{
		ID: st.ID, Email: st.Email, DisplayName: st.DisplayName,
		PasswordHash: st.PasswordHash, CreatedAt: st.CreatedAt,
	}, nil
}
