package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talgya/gridworld/internal/calendar"
)

// Snapshot is a complete world read from the durable store.
type Snapshot struct {
	People   []*Person
	Families []*Family
	Villages []*Village
	Tiles    []*Tile
	Lands    map[uint64][]LandChunk
}

// Restore repopulates the hot store from a durable snapshot. Entity hashes
// are written verbatim; the eligibility index and village membership sets
// are rebuilt from the person records rather than trusting any stored
// index snapshot. Pending markers are not set — the snapshot is already
// durable. The caller must have flushed the hot store first.
func (w *World) Restore(ctx context.Context, snap Snapshot, rule EligibilityRule, now calendar.Date) error {
	pipe := w.hot.Pipeline()

	villageByID := make(map[uint64]*Village, len(snap.Villages))
	for _, v := range snap.Villages {
		villageByID[v.ID] = v
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode village %d: %w", v.ID, err)
		}
		pipe.HSet(keyVillage, formatID(v.ID), string(raw))
	}
	for _, p := range snap.People {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode person %d: %w", p.ID, err)
		}
		pipe.HSet(keyPerson, formatID(p.ID), string(raw))

		// Membership sets derive from residency, never from a snapshot.
		if p.Residency != nil {
			v, ok := villageByID[*p.Residency]
			if !ok {
				// Dangling residency: left for the repair pass to report.
				continue
			}
			pipe.SAdd(membershipKey(v.TileID, v.LandChunkIndex), formatID(p.ID))
		}
	}
	for _, f := range snap.Families {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode family %d: %w", f.ID, err)
		}
		pipe.HSet(keyFamily, formatID(f.ID), string(raw))
	}
	for _, t := range snap.Tiles {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode tile %d: %w", t.ID, err)
		}
		pipe.HSet(keyTile, formatID(t.ID), string(raw))
	}
	for tileID, lands := range snap.Lands {
		raw, err := json.Marshal(lands)
		if err != nil {
			return fmt.Errorf("encode lands of tile %d: %w", tileID, err)
		}
		pipe.HSet(keyTileLands, formatID(tileID), string(raw))
	}

	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	if err := w.RebuildEligibility(ctx, rule, now, nil); err != nil {
		return err
	}
	return w.ResetCounts(ctx)
}
