// Package village assigns unresided people into village housing.
package village

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/gridworld/internal/state"
)

// Assigner bin-packs unresided people into a tile's villages.
type Assigner struct {
	world *state.World
}

// NewAssigner creates an assigner over the shared world state.
func NewAssigner(world *state.World) *Assigner {
	return &Assigner{world: world}
}

// AssignTile places the tile's unresided people into its villages, in
// village id order, filling each to capacity before moving on. People are
// taken in ascending id order so the packing is deterministic. Whoever
// does not fit stays unresided. Returns the number of people placed.
//
// Before a person joins a village's membership set they are removed from
// any set they might already hold — duplicate memberships have been
// observed in the wild and are cheaper to prevent here than to repair.
func (a *Assigner) AssignTile(ctx context.Context, tileID uint64) (int, error) {
	people, err := a.world.PeopleOnTile(ctx, tileID)
	if err != nil {
		return 0, fmt.Errorf("assign tile %d: %w", tileID, err)
	}
	var unresided []*state.Person
	for _, p := range people {
		if p.Residency == nil {
			unresided = append(unresided, p)
		}
	}
	if len(unresided) == 0 {
		return 0, nil
	}

	villages, err := a.world.VillagesOnTile(ctx, tileID)
	if err != nil {
		return 0, fmt.Errorf("assign tile %d: %w", tileID, err)
	}

	pipe := a.world.Hot().Pipeline()
	cursor := 0
	for _, v := range villages {
		if cursor >= len(unresided) {
			break
		}
		occupied, err := a.world.ResidentCount(ctx, v)
		if err != nil {
			return 0, fmt.Errorf("assign tile %d: %w", tileID, err)
		}
		available := v.HousingCap - occupied
		if available <= 0 {
			continue
		}
		take := available
		if remaining := len(unresided) - cursor; remaining < take {
			take = remaining
		}

		memberKey := a.world.MembershipKey(v)
		for _, p := range unresided[cursor : cursor+take] {
			if err := a.world.DropMembership(ctx, p.ID); err != nil {
				return 0, fmt.Errorf("assign person %d: %w", p.ID, err)
			}
			vid := v.ID
			p.Residency = &vid
			v.HousingSlots = appendResident(v.HousingSlots, p.ID)
			pipe.SAdd(memberKey, fmt.Sprintf("%d", p.ID))
			if err := a.world.PipePutPerson(pipe, p); err != nil {
				return 0, err
			}
		}
		if err := a.world.PipePutVillage(pipe, v); err != nil {
			return 0, err
		}
		cursor += take
	}

	if err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("assign tile %d: %w", tileID, err)
	}

	if cursor < len(unresided) {
		slog.Info("housing exhausted",
			"tile", tileID, "placed", cursor, "unresided", len(unresided)-cursor)
	}
	return cursor, nil
}

func appendResident(slots []uint64, id uint64) []uint64 {
	for _, s := range slots {
		if s == id {
			return slots
		}
	}
	return append(slots, id)
}
