package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/talgya/gridworld/internal/store"
)

// Village returns one village record, or nil if absent.
func (w *World) Village(ctx context.Context, id uint64) (*Village, error) {
	raw, ok, err := w.hot.HGet(ctx, keyVillage, formatID(id))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("get village %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var v Village
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode village %d: %w", id, err)
	}
	return &v, nil
}

// Villages returns every village keyed by id.
func (w *World) Villages(ctx context.Context) (map[uint64]*Village, error) {
	raw, err := w.hot.HGetAll(ctx, keyVillage)
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("load villages: %w", err)
	}
	out := make(map[uint64]*Village, len(raw))
	for field, val := range raw {
		var v Village
		if err := json.Unmarshal([]byte(val), &v); err != nil {
			return nil, fmt.Errorf("decode village %s: %w", field, err)
		}
		out[v.ID] = &v
	}
	return out, nil
}

// VillagesOnTile returns the tile's villages ascending by id, the order
// residency assignment fills them in.
func (w *World) VillagesOnTile(ctx context.Context, tileID uint64) ([]*Village, error) {
	all, err := w.Villages(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Village
	for _, v := range all {
		if v.TileID == tileID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutVillage upserts a village record and marks it pending.
func (w *World) PutVillage(ctx context.Context, v *Village) error {
	if len(v.HousingSlots) > v.HousingCap {
		return fmt.Errorf("village %d: %d residents exceed capacity %d",
			v.ID, len(v.HousingSlots), v.HousingCap)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode village %d: %w", v.ID, err)
	}
	if err := w.hot.HSet(ctx, keyVillage, formatID(v.ID), string(raw)); err != nil {
		return fmt.Errorf("put village %d: %w", v.ID, err)
	}
	return w.MarkInserted(ctx, keyVillage, v.ID)
}

// PipePutVillage queues a village upsert and its pending marker on a batch.
func (w *World) PipePutVillage(pipe store.Pipeline, v *Village) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode village %d: %w", v.ID, err)
	}
	id := formatID(v.ID)
	pipe.HSet(keyVillage, id, string(raw))
	pipe.SAdd(pendingKey(keyVillage, "inserts"), id)
	return nil
}

// Residents returns the membership set of one village's people set.
func (w *World) Residents(ctx context.Context, v *Village) ([]uint64, error) {
	members, err := w.hot.SMembers(ctx, membershipKey(v.TileID, v.LandChunkIndex))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("village %d residents: %w", v.ID, err)
	}
	return parseIDs(members)
}

// ResidentCount returns the membership cardinality for a village.
func (w *World) ResidentCount(ctx context.Context, v *Village) (int, error) {
	n, err := w.hot.SCard(ctx, membershipKey(v.TileID, v.LandChunkIndex))
	if err := readErr(err); err != nil {
		return 0, fmt.Errorf("village %d resident count: %w", v.ID, err)
	}
	return int(n), nil
}

// MembershipKey exposes the set key for a village's residents, used by
// bulk assignment batches.
func (w *World) MembershipKey(v *Village) string {
	return membershipKey(v.TileID, v.LandChunkIndex)
}

// MembershipSets returns every village membership set keyed by the raw set
// key, as used by the integrity repair scan.
func (w *World) MembershipSets(ctx context.Context) (map[string][]uint64, error) {
	keys, err := w.hot.Keys(ctx, membershipPattern)
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("scan membership sets: %w", err)
	}
	out := make(map[string][]uint64, len(keys))
	for _, k := range keys {
		members, err := w.hot.SMembers(ctx, k)
		if err := readErr(err); err != nil {
			return nil, fmt.Errorf("members of %s: %w", k, err)
		}
		ids, err := parseIDs(members)
		if err != nil {
			return nil, fmt.Errorf("members of %s: %w", k, err)
		}
		out[k] = ids
	}
	return out, nil
}

// DropMembership removes a person from every membership set they appear
// in. Always called before adding them to a new set; duplicate memberships
// are an observed failure mode.
func (w *World) DropMembership(ctx context.Context, personID uint64) error {
	keys, err := w.hot.Keys(ctx, membershipPattern)
	if err := readErr(err); err != nil {
		return fmt.Errorf("scan membership sets: %w", err)
	}
	member := formatID(personID)
	for _, k := range keys {
		ok, err := w.hot.SIsMember(ctx, k, member)
		if err := readErr(err); err != nil {
			return err
		}
		if ok {
			if err := w.hot.SRem(ctx, k, member); err != nil {
				return fmt.Errorf("remove person %d from %s: %w", personID, k, err)
			}
		}
	}
	return nil
}

// RemoveMember drops one person from one membership set. Used by the
// integrity repair pass when a set disagrees with person residency.
func (w *World) RemoveMember(ctx context.Context, setKey string, personID uint64) error {
	if err := w.hot.SRem(ctx, setKey, formatID(personID)); err != nil {
		return fmt.Errorf("remove person %d from %s: %w", personID, setKey, err)
	}
	return nil
}

// ParseMembershipKey splits a membership set key back into tile id and
// chunk index. Returns false for malformed keys.
func ParseMembershipKey(key string) (tileID uint64, chunk int, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "village" || parts[3] != "people" {
		return 0, 0, false
	}
	t, err := parseID(parts[1])
	if err != nil {
		return 0, 0, false
	}
	c, err := parseID(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return t, int(c), true
}

func parseIDs(members []string) ([]uint64, error) {
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := parseID(m)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", m, err)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
