package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service is the persistence facade over a Repository. It owns the lifecycle
// rules: id and createdAt are fixed at the first save, lastModified is
// restamped on every save and strictly increases.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// stamp sets lastModified to now, nudging forward if the clock has not moved
// past the previous save.
func (s *Service) stamp(p *Protocol, prev time.Time) {
	now := s.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	p.LastModified = now
}

// Create validates and persists a new record. A missing id or createdAt is
// filled in here; this is the moment both become fixed.
func (s *Service) Create(ctx context.Context, ownerID string, p *Protocol) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.stamp(p, time.Time{})
	return s.repo.Save(ctx, ownerID, p)
}

// Update validates and overwrites an existing record. createdAt is carried
// over from the stored record regardless of what the caller sent; it is
// immutable for the record's lifetime.
func (s *Service) Update(ctx context.Context, ownerID, id string, p *Protocol) error {
	existing, err := s.repo.Load(ctx, ownerID, id)
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = existing.CreatedAt
	if err := p.Validate(); err != nil {
		return err
	}
	s.stamp(p, existing.LastModified)
	return s.repo.Save(ctx, ownerID, p)
}

// Get loads the full record or ErrNotFound, never a partial one.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Protocol, error) {
	return s.repo.Load(ctx, ownerID, id)
}

// Delete removes the record and its summary entry. Deleting an unknown id is
// a no-op.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.repo.Delete(ctx, ownerID, id)
}

// List returns all summaries, most recently touched first.
func (s *Service) List(ctx context.Context, ownerID string) ([]ListItem, error) {
	return s.repo.List(ctx, ownerID)
}

// Search applies the list query on top of List's default ordering.
func (s *Service) Search(ctx context.Context, ownerID string, q ListQuery) ([]ListItem, error) {
	items, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return Filter(items, q), nil
}

// Grouped returns the filtered list grouped by chiffre.
func (s *Service) Grouped(ctx context.Context, ownerID string, q ListQuery) ([]Group, error) {
	items, err := s.Search(ctx, ownerID, q)
	if err != nil {
		return nil, err
	}
	return GroupByChiffre(items), nil
}

// ImportMany saves every record carrying at least an id, chiffre, and datum.
// Records failing that minimal check are skipped without aborting the batch.
// Returns the count actually saved; a storage failure stops the batch and is
// returned alongside the count so far.
func (s *Service) ImportMany(ctx context.Context, ownerID string, records []*Protocol) (int, error) {
	imported := 0
	for _, p := range records {
		if p == nil ||
			strings.TrimSpace(p.ID) == "" ||
			strings.TrimSpace(p.Chiffre) == "" ||
			strings.TrimSpace(p.Datum) == "" {
			continue
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now().UTC()
		}
		s.stamp(p, p.LastModified)
		if err := s.repo.Save(ctx, ownerID, p); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
