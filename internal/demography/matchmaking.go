package demography

import (
	"context"
	"log/slog"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/state"
)

// Matchmake pairs eligible singles into new families, tile by tile. For
// each tile with candidates of both sexes, each man takes the first woman
// in shuffled order whose age is within the configured gap; the unpaired
// remainder stays eligible for a future tick. A person is never paired
// twice in one invocation: pairing removes both spouses from the index
// before the next pair is formed.
func (e *Engine) Matchmake(ctx context.Context, now calendar.Date) int {
	maleTiles, err := e.world.TilesWithEligible(ctx, state.SexMale)
	if err != nil {
		slog.Warn("matchmaking skipped", "error", err)
		return 0
	}
	femaleTiles, err := e.world.TilesWithEligible(ctx, state.SexFemale)
	if err != nil {
		slog.Warn("matchmaking skipped", "error", err)
		return 0
	}

	females := make(map[uint64]bool, len(femaleTiles))
	for _, t := range femaleTiles {
		females[t] = true
	}

	marriages := 0
	for _, tile := range maleTiles {
		if !females[tile] {
			continue
		}
		marriages += e.matchTile(ctx, tile, now)
	}
	return marriages
}

func (e *Engine) matchTile(ctx context.Context, tileID uint64, now calendar.Date) int {
	males, err := e.world.EligibleOnTile(ctx, state.SexMale, tileID)
	if err != nil {
		slog.Warn("matchmaking tile skipped", "tile", tileID, "error", err)
		return 0
	}
	females, err := e.world.EligibleOnTile(ctx, state.SexFemale, tileID)
	if err != nil {
		slog.Warn("matchmaking tile skipped", "tile", tileID, "error", err)
		return 0
	}

	// Candidate lists arrive sorted; the shuffle is the only randomness,
	// so a seeded source makes pairing deterministic.
	e.rng.Shuffle(len(males), func(i, j int) { males[i], males[j] = males[j], males[i] })
	e.rng.Shuffle(len(females), func(i, j int) { females[i], females[j] = females[j], females[i] })

	women := make([]*state.Person, len(females))
	for i, id := range females {
		w, err := e.world.Person(ctx, id)
		if err != nil {
			slog.Warn("matchmaking candidate skipped", "person", id, "error", err)
			continue
		}
		women[i] = w
	}

	married := 0
	for _, maleID := range males {
		man, err := e.world.Person(ctx, maleID)
		if err != nil {
			slog.Warn("matchmaking candidate skipped", "person", maleID, "error", err)
			continue
		}
		if man == nil || man.FamilyID != nil {
			continue
		}
		manAge := e.sys.YearsBetween(man.Born, now)

		// First compatible woman in shuffled order wins; incompatible men
		// stay eligible for a future tick.
		for i, woman := range women {
			if woman == nil || woman.FamilyID != nil {
				continue
			}
			diff := manAge - e.sys.YearsBetween(woman.Born, now)
			if diff < 0 {
				diff = -diff
			}
			if diff > e.cfg.MarriageMaxAgeDiff {
				continue
			}
			ok, err := e.marry(ctx, maleID, woman.ID, tileID)
			if err != nil {
				slog.Warn("pairing failed", "husband", maleID, "wife", woman.ID, "error", err)
			}
			women[i] = nil
			if ok {
				married++
			}
			break
		}
	}
	return married
}

// marry forms one family. Both person records are locked for the compound
// mutation and re-checked under the lock; the family record is written
// whole, so it is never observable with only one spouse set.
func (e *Engine) marry(ctx context.Context, husbandID, wifeID, tileID uint64) (bool, error) {
	unlock := e.world.LockPeople(husbandID, wifeID)
	defer unlock()

	husband, err := e.world.Person(ctx, husbandID)
	if err != nil {
		return false, err
	}
	wife, err := e.world.Person(ctx, wifeID)
	if err != nil {
		return false, err
	}
	if husband == nil || wife == nil || husband.FamilyID != nil || wife.FamilyID != nil {
		// Died or married since the candidate sets were read; drop the pair.
		return false, nil
	}

	famID, err := e.alloc.Next(ctx, state.EntityFamily)
	if err != nil {
		return false, err
	}
	fam := &state.Family{
		ID:        famID,
		HusbandID: husbandID,
		WifeID:    wifeID,
		TileID:    tileID,
	}
	if err := e.world.PutFamily(ctx, fam); err != nil {
		return false, err
	}

	husband.FamilyID = &famID
	wife.FamilyID = &famID
	if err := e.world.PutPerson(ctx, husband); err != nil {
		return false, err
	}
	if err := e.world.PutPerson(ctx, wife); err != nil {
		return false, err
	}

	if err := e.world.RemoveEligible(ctx, husband); err != nil {
		return false, err
	}
	if err := e.world.RemoveEligible(ctx, wife); err != nil {
		return false, err
	}
	if err := e.world.BumpCount(ctx, state.CountMarriages, 1); err != nil {
		return false, err
	}
	return true, nil
}
