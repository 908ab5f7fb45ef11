package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talgya/gridworld/internal/store"
)

// Tile returns one tile record, or nil if absent.
func (w *World) Tile(ctx context.Context, id uint64) (*Tile, error) {
	raw, ok, err := w.hot.HGet(ctx, keyTile, formatID(id))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("get tile %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var t Tile
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode tile %d: %w", id, err)
	}
	return &t, nil
}

// Tiles returns every tile keyed by id.
func (w *World) Tiles(ctx context.Context) (map[uint64]*Tile, error) {
	raw, err := w.hot.HGetAll(ctx, keyTile)
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}
	out := make(map[uint64]*Tile, len(raw))
	for field, val := range raw {
		var t Tile
		if err := json.Unmarshal([]byte(val), &t); err != nil {
			return nil, fmt.Errorf("decode tile %s: %w", field, err)
		}
		out[t.ID] = &t
	}
	return out, nil
}

// PipePutTile queues a tile upsert on a batch. Tiles are written by the
// terrain pass only, so there is no single-record variant.
func (w *World) PipePutTile(pipe store.Pipeline, t *Tile) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tile %d: %w", t.ID, err)
	}
	id := formatID(t.ID)
	pipe.HSet(keyTile, id, string(raw))
	pipe.SAdd(pendingKey(keyTile, "inserts"), id)
	return nil
}

// TileLands returns the ordered land chunks of one tile.
func (w *World) TileLands(ctx context.Context, tileID uint64) ([]LandChunk, error) {
	raw, ok, err := w.hot.HGet(ctx, keyTileLands, formatID(tileID))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("get lands of tile %d: %w", tileID, err)
	}
	if !ok {
		return nil, nil
	}
	var lands []LandChunk
	if err := json.Unmarshal([]byte(raw), &lands); err != nil {
		return nil, fmt.Errorf("decode lands of tile %d: %w", tileID, err)
	}
	return lands, nil
}

// PutTileLands replaces the land chunk list of one tile.
func (w *World) PutTileLands(ctx context.Context, tileID uint64, lands []LandChunk) error {
	raw, err := json.Marshal(lands)
	if err != nil {
		return fmt.Errorf("encode lands of tile %d: %w", tileID, err)
	}
	if err := w.hot.HSet(ctx, keyTileLands, formatID(tileID), string(raw)); err != nil {
		return fmt.Errorf("put lands of tile %d: %w", tileID, err)
	}
	return w.MarkInserted(ctx, keyTile, tileID)
}

// PipePutTileLands queues a tile lands replacement on a batch.
func (w *World) PipePutTileLands(pipe store.Pipeline, tileID uint64, lands []LandChunk) error {
	raw, err := json.Marshal(lands)
	if err != nil {
		return fmt.Errorf("encode lands of tile %d: %w", tileID, err)
	}
	pipe.HSet(keyTileLands, formatID(tileID), string(raw))
	return nil
}
