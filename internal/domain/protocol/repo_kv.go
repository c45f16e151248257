package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/emdr/protokoll/internal/platform/kvstore"
)

const (
	recordKeyPrefix = "protocol:"
	indexKeySuffix  = ":index"
)

type protocolRepoKV struct{ store *kvstore.Store }

// NewRepoKV returns the local repository over the key-value store. Each full
// record lives under prefix+owner+id; the summary index is one JSON array
// under a well-known per-owner key, rewritten wholesale on every mutation
// (read, filter-out-by-id, append-or-omit, write-back). Last writer wins;
// the access model is a single therapist session.
func NewRepoKV(store *kvstore.Store) Repository {
	return &protocolRepoKV{store: store}
}

func recordKey(ownerID, id string) string { return recordKeyPrefix + ownerID + ":" + id }
func indexKey(ownerID string) string      { return recordKeyPrefix + ownerID + indexKeySuffix }

func (r *protocolRepoKV) readIndex(ctx context.Context, ownerID string) ([]ListItem, error) {
	raw, ok, err := r.store.Get(ctx, indexKey(ownerID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return []ListItem{}, nil
	}
	var items []ListItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode summary index: %w", err)
	}
	return items, nil
}

func (r *protocolRepoKV) writeIndex(ctx context.Context, ownerID string, items []ListItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode summary index: %w", err)
	}
	return r.store.Put(ctx, indexKey(ownerID), string(raw))
}

func withoutID(items []ListItem, id string) []ListItem {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func (r *protocolRepoKV) Save(ctx context.Context, ownerID string, p *Protocol) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal protocol %s: %w", p.ID, err)
	}
	if err := r.store.Put(ctx, recordKey(ownerID, p.ID), string(data)); err != nil {
		return err
	}
	// The record is durable from here; if the index write fails the caller
	// is told so it can reconcile by re-listing.
	items, err := r.readIndex(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("summary index may be stale for %s: %w", p.ID, err)
	}
	items = append(withoutID(items, p.ID), p.Summary())
	if err := r.writeIndex(ctx, ownerID, items); err != nil {
		return fmt.Errorf("summary index may be stale for %s: %w", p.ID, err)
	}
	return nil
}

func (r *protocolRepoKV) Load(ctx context.Context, ownerID, id string) (*Protocol, error) {
	raw, ok, err := r.store.Get(ctx, recordKey(ownerID, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	var p Protocol
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode protocol %s: %w", id, err)
	}
	return &p, nil
}

func (r *protocolRepoKV) Delete(ctx context.Context, ownerID, id string) error {
	if err := r.store.Remove(ctx, recordKey(ownerID, id)); err != nil {
		return err
	}
	items, err := r.readIndex(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("summary index may be stale for %s: %w", id, err)
	}
	if err := r.writeIndex(ctx, ownerID, withoutID(items, id)); err != nil {
		return fmt.Errorf("summary index may be stale for %s: %w", id, err)
	}
	return nil
}

func (r *protocolRepoKV) List(ctx context.Context, ownerID string) ([]ListItem, error) {
	items, err := r.readIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastModified.After(items[j].LastModified)
	})
	return items, nil
}
