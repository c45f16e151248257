package protocol

import (
	"context"
	"errors"
)

// ErrNotFound signals a load/update on an id the store does not hold (or one
// owned by another therapist, which callers must not be able to tell apart).
var ErrNotFound = errors.New("protocol not found")

// Repository persists full records and keeps the summary index in agreement.
// Save is atomic from the caller's view: either both the record and its index
// entry are written, or the caller is told and should reconcile by
// re-listing. Delete on a missing id is a no-op. List returns summaries by
// lastModified descending.
type Repository interface {
	Save(ctx context.Context, ownerID string, p *Protocol) error
	Load(ctx context.Context, ownerID, id string) (*Protocol, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string) ([]ListItem, error)
}
