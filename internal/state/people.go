package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/talgya/gridworld/internal/store"
)

// Person returns the record for one person, or nil if absent.
func (w *World) Person(ctx context.Context, id uint64) (*Person, error) {
	raw, ok, err := w.hot.HGet(ctx, keyPerson, formatID(id))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("get person %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var p Person
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode person %d: %w", id, err)
	}
	return &p, nil
}

// People returns every living person keyed by id.
func (w *World) People(ctx context.Context) (map[uint64]*Person, error) {
	raw, err := w.hot.HGetAll(ctx, keyPerson)
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	out := make(map[uint64]*Person, len(raw))
	for field, val := range raw {
		var p Person
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			return nil, fmt.Errorf("decode person %s: %w", field, err)
		}
		out[p.ID] = &p
	}
	return out, nil
}

// PeopleOnTile returns the living people on one tile, ascending by id.
func (w *World) PeopleOnTile(ctx context.Context, tileID uint64) ([]*Person, error) {
	all, err := w.People(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Person
	for _, p := range all {
		if p.TileID == tileID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutPerson upserts a person record and marks it pending for the next
// durable save.
func (w *World) PutPerson(ctx context.Context, p *Person) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode person %d: %w", p.ID, err)
	}
	if err := w.hot.HSet(ctx, keyPerson, formatID(p.ID), string(raw)); err != nil {
		return fmt.Errorf("put person %d: %w", p.ID, err)
	}
	return w.MarkInserted(ctx, keyPerson, p.ID)
}

// DeletePerson removes a person record and queues a pending delete. Index
// membership cleanup is the caller's responsibility (see demography and
// village packages).
func (w *World) DeletePerson(ctx context.Context, id uint64) error {
	if err := w.hot.HDel(ctx, keyPerson, formatID(id)); err != nil {
		return fmt.Errorf("delete person %d: %w", id, err)
	}
	return w.MarkDeleted(ctx, keyPerson, id)
}

// PipePutPerson queues a person upsert and its pending marker on a batch.
func (w *World) PipePutPerson(pipe store.Pipeline, p *Person) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode person %d: %w", p.ID, err)
	}
	id := formatID(p.ID)
	pipe.HSet(keyPerson, id, string(raw))
	pipe.SAdd(pendingKey(keyPerson, "inserts"), id)
	return nil
}

// PopulationByTile returns living person counts per tile.
func (w *World) PopulationByTile(ctx context.Context) (map[uint64]int, error) {
	all, err := w.People(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]int)
	for _, p := range all {
		out[p.TileID]++
	}
	return out, nil
}
