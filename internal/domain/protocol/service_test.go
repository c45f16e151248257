package protocol

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockRepo is a map-backed Repository keeping records and summaries in step,
// the way a real backend must.
type mockRepo struct {
	records   map[string]map[string]*Protocol
	summaries map[string]map[string]ListItem
	saveErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		records:   make(map[string]map[string]*Protocol),
		summaries: make(map[string]map[string]ListItem),
	}
}

func (m *mockRepo) Save(_ context.Context, ownerID string, p *Protocol) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.records[ownerID] == nil {
		m.records[ownerID] = make(map[string]*Protocol)
		m.summaries[ownerID] = make(map[string]ListItem)
	}
	cp := *p
	m.records[ownerID][p.ID] = &cp
	m.summaries[ownerID][p.ID] = p.Summary()
	return nil
}

func (m *mockRepo) Load(_ context.Context, ownerID, id string) (*Protocol, error) {
	p, ok := m.records[ownerID][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Delete(_ context.Context, ownerID, id string) error {
	delete(m.records[ownerID], id)
	delete(m.summaries[ownerID], id)
	return nil
}

func (m *mockRepo) List(_ context.Context, ownerID string) ([]ListItem, error) {
	out := make([]ListItem, 0, len(m.summaries[ownerID]))
	for _, it := range m.summaries[ownerID] {
		out = append(out, it)
	}
	return out, nil
}

const owner = "therapist-1"

func validProtocol(t *testing.T, id string) *Protocol {
	t.Helper()
	p := mustDraft(t, TypeSichererOrt, Metadata{
		ID:              id,
		Chiffre:         "AB-12",
		Datum:           "2024-03-15",
		Protokollnummer: "P-1",
	})
	return p
}

func TestService_CreateFillsIdentity(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := validProtocol(t, "")
	if err := svc.Create(context.Background(), owner, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Error("expected generated id")
	}
	if p.CreatedAt.IsZero() || p.LastModified.IsZero() {
		t.Error("expected createdAt and lastModified to be stamped")
	}
	if _, err := svc.Get(context.Background(), owner, p.ID); err != nil {
		t.Fatalf("get after create: %v", err)
	}
}

func TestService_CreateRejectsInvalidWithoutSaving(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := mustDraft(t, TypeStandard, Metadata{ID: "s1"}) // missing chiffre etc.
	err := svc.Create(context.Background(), owner, p)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(repo.records[owner]) != 0 {
		t.Error("invalid record must not reach the store")
	}
}

func TestService_SummaryAgreesAfterSave(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := validProtocol(t, "p1")
	if err := svc.Create(ctx, owner, p); err != nil {
		t.Fatal(err)
	}

	items, err := svc.List(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(items))
	}
	stored, _ := svc.Get(ctx, owner, "p1")
	if items[0] != stored.Summary() {
		t.Errorf("summary diverged: %+v vs %+v", items[0], stored.Summary())
	}

	// Still in step after an update touching a summarized field.
	stored.Chiffre = "CD-34"
	if err := svc.Update(ctx, owner, "p1", stored); err != nil {
		t.Fatal(err)
	}
	items, _ = svc.List(ctx, owner)
	if items[0].Chiffre != "CD-34" {
		t.Errorf("summary not refreshed: %+v", items[0])
	}
}

func TestService_UpdateKeepsCreatedAt(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := validProtocol(t, "p1")
	if err := svc.Create(ctx, owner, p); err != nil {
		t.Fatal(err)
	}
	created := p.CreatedAt

	upd := validProtocol(t, "p1")
	upd.CreatedAt = created.Add(48 * time.Hour) // caller lies about createdAt
	if err := svc.Update(ctx, owner, "p1", upd); err != nil {
		t.Fatal(err)
	}

	stored, _ := svc.Get(ctx, owner, "p1")
	if !stored.CreatedAt.Equal(created) {
		t.Errorf("createdAt changed: %v -> %v", created, stored.CreatedAt)
	}
}

func TestService_UpdateUnknownIsNotFound(t *testing.T) {
	svc := NewService(newMockRepo())
	err := svc.Update(context.Background(), owner, "ghost", validProtocol(t, "ghost"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_LastModifiedStrictlyIncreases(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// Frozen clock: the service must still move lastModified forward.
	frozen := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	p := validProtocol(t, "p1")
	if err := svc.Create(ctx, owner, p); err != nil {
		t.Fatal(err)
	}
	prev := p.LastModified

	for i := 0; i < 3; i++ {
		upd, _ := svc.Get(ctx, owner, "p1")
		if err := svc.Update(ctx, owner, "p1", upd); err != nil {
			t.Fatal(err)
		}
		if !upd.LastModified.After(prev) {
			t.Fatalf("save %d: lastModified %v did not advance past %v", i, upd.LastModified, prev)
		}
		prev = upd.LastModified
	}
}

func TestService_DeleteIsIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := validProtocol(t, "p1")
	if err := svc.Create(ctx, owner, p); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, owner, "p1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := svc.Delete(ctx, owner, "p1"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if err := svc.Delete(ctx, owner, "never-existed"); err != nil {
		t.Fatalf("deleting unknown id must be a no-op, got %v", err)
	}

	if _, err := svc.Get(ctx, owner, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	items, _ := svc.List(ctx, owner)
	if len(items) != 0 {
		t.Errorf("summary survived the delete: %v", items)
	}
}

func TestService_ImportManySkipsIncomplete(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	records := []*Protocol{
		validProtocol(t, "a"),
		nil,
		mustDraft(t, TypeIRI, Metadata{ID: "", Chiffre: "X", Datum: "2024-01-01"}),  // no id
		mustDraft(t, TypeIRI, Metadata{ID: "b", Chiffre: "", Datum: "2024-01-01"}), // no chiffre
		mustDraft(t, TypeIRI, Metadata{ID: "c", Chiffre: "X", Datum: ""}),          // no datum
		validProtocol(t, "d"),
	}

	n, err := svc.ImportMany(context.Background(), owner, records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported, got %d", n)
	}
	if len(repo.records[owner]) != 2 {
		t.Errorf("store holds %d records", len(repo.records[owner]))
	}
}

func TestService_ImportManyStopsOnStorageError(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Create(ctx, owner, validProtocol(t, "seed")); err != nil {
		t.Fatal(err)
	}
	repo.saveErr = errors.New("disk full")

	n, err := svc.ImportMany(ctx, owner, []*Protocol{validProtocol(t, "x"), validProtocol(t, "y")})
	if err == nil {
		t.Fatal("expected storage error to surface")
	}
	if n != 0 {
		t.Errorf("expected 0 imported before the failure, got %d", n)
	}
}

func TestService_OwnerScoping(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Create(ctx, "alice", validProtocol(t, "p1")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(ctx, "bob", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record must not be visible to another owner, got %v", err)
	}
	items, _ := svc.List(ctx, "bob")
	if len(items) != 0 {
		t.Errorf("summary leaked across owners: %v", items)
	}
}
