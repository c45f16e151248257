package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/emdr/protokoll/internal/platform/kvstore"
)

func newKVRepo(t *testing.T) Repository {
	t.Helper()
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "protokoll.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRepoKV(store)
}

func TestRepoKV_SaveLoadRoundTrip(t *testing.T) {
	repo := newKVRepo(t)
	ctx := context.Background()

	p := mustDraft(t, TypeStandard, testMeta())
	p.Standard.StartKnoten = "Bild der Pruefung"
	p.Standard.Channel = []ChannelItem{{
		Stimulation: Stimulation{AnzahlBewegungen: 24, Geschwindigkeit: GeschwindigkeitSchnell},
		Fragment:    Fragment{Text: "weniger bedrohlich", Einwebung: "Ressource"},
	}}
	p.LastModified = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	if err := repo.Save(ctx, owner, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ProtocolType != TypeStandard || got.Standard == nil {
		t.Fatalf("wrong shape back: %+v", got)
	}
	if got.Standard.StartKnoten != "Bild der Pruefung" || len(got.Standard.Channel) != 1 {
		t.Errorf("body lost in round trip: %+v", got.Standard)
	}
	if got.Standard.Channel[0].Fragment.Einwebung != "Ressource" {
		t.Errorf("channel item lost fields: %+v", got.Standard.Channel[0])
	}
}

func TestRepoKV_LoadUnknownIsNotFound(t *testing.T) {
	repo := newKVRepo(t)
	if _, err := repo.Load(context.Background(), owner, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoKV_IndexFollowsMutations(t *testing.T) {
	repo := newKVRepo(t)
	ctx := context.Background()

	older := mustDraft(t, TypeIRI, Metadata{
		ID: "a", Chiffre: "P-001", Datum: "2024-01-01", Protokollnummer: "1",
	})
	older.LastModified = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	newer := mustDraft(t, TypeCIPOS, Metadata{
		ID: "b", Chiffre: "P-002", Datum: "2024-01-02", Protokollnummer: "1",
	})
	newer.LastModified = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	for _, p := range []*Protocol{older, newer} {
		if err := repo.Save(ctx, owner, p); err != nil {
			t.Fatal(err)
		}
	}

	items, err := repo.List(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(items))
	}
	// Most recently touched first.
	if items[0].ID != "b" || items[1].ID != "a" {
		t.Errorf("wrong order: %+v", items)
	}
	if items[0] != newer.Summary() {
		t.Errorf("summary diverged: %+v vs %+v", items[0], newer.Summary())
	}

	// Re-saving replaces the index entry, never duplicates it.
	older.Chiffre = "P-003"
	older.LastModified = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, owner, older); err != nil {
		t.Fatal(err)
	}
	items, _ = repo.List(ctx, owner)
	if len(items) != 2 {
		t.Fatalf("index grew on re-save: %+v", items)
	}
	if items[0].ID != "a" || items[0].Chiffre != "P-003" {
		t.Errorf("index entry not refreshed: %+v", items[0])
	}

	if err := repo.Delete(ctx, owner, "a"); err != nil {
		t.Fatal(err)
	}
	items, _ = repo.List(ctx, owner)
	if len(items) != 1 || items[0].ID != "b" {
		t.Errorf("delete did not prune the index: %+v", items)
	}

	// Deleting an unknown id leaves everything alone.
	if err := repo.Delete(ctx, owner, "ghost"); err != nil {
		t.Fatalf("no-op delete: %v", err)
	}
	if items, _ = repo.List(ctx, owner); len(items) != 1 {
		t.Errorf("no-op delete touched the index: %+v", items)
	}
}

func TestRepoKV_OwnersAreIsolated(t *testing.T) {
	repo := newKVRepo(t)
	ctx := context.Background()

	p := mustDraft(t, TypeSichererOrt, testMeta())
	if err := repo.Save(ctx, "alice", p); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Load(ctx, "bob", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	items, err := repo.List(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("index leaked across owners: %+v", items)
	}
}

func TestRepoKV_PreservesUnknownFields(t *testing.T) {
	repo := newKVRepo(t)
	ctx := context.Background()

	p := mustDraft(t, TypeSichererOrt, testMeta())
	p.Extra = map[string]json.RawMessage{"clientVersion": json.RawMessage("7")}

	if err := repo.Save(ctx, owner, p); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Load(ctx, owner, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Extra["clientVersion"]) != "7" {
		t.Errorf("unknown field lost through storage: %v", got.Extra)
	}
}
