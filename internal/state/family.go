package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// Family returns one family record, or nil if absent.
func (w *World) Family(ctx context.Context, id uint64) (*Family, error) {
	raw, ok, err := w.hot.HGet(ctx, keyFamily, formatID(id))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("get family %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var f Family
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("decode family %d: %w", id, err)
	}
	return &f, nil
}

// Families returns every family keyed by id.
func (w *World) Families(ctx context.Context) (map[uint64]*Family, error) {
	raw, err := w.hot.HGetAll(ctx, keyFamily)
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("load families: %w", err)
	}
	out := make(map[uint64]*Family, len(raw))
	for field, val := range raw {
		var f Family
		if err := json.Unmarshal([]byte(val), &f); err != nil {
			return nil, fmt.Errorf("decode family %s: %w", field, err)
		}
		out[f.ID] = &f
	}
	return out, nil
}

// PutFamily upserts a family record and marks it pending. The full record
// is written in one hash set, so a family is never observable half-created.
func (w *World) PutFamily(ctx context.Context, f *Family) error {
	if f.HusbandID == 0 || f.WifeID == 0 {
		return fmt.Errorf("family %d: both spouses required", f.ID)
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode family %d: %w", f.ID, err)
	}
	if err := w.hot.HSet(ctx, keyFamily, formatID(f.ID), string(raw)); err != nil {
		return fmt.Errorf("put family %d: %w", f.ID, err)
	}
	return w.MarkInserted(ctx, keyFamily, f.ID)
}

// DeleteFamily removes a family record and queues a pending delete.
func (w *World) DeleteFamily(ctx context.Context, id uint64) error {
	if err := w.hot.HDel(ctx, keyFamily, formatID(id)); err != nil {
		return fmt.Errorf("delete family %d: %w", id, err)
	}
	return w.MarkDeleted(ctx, keyFamily, id)
}
