package state

import (
	"context"
	"fmt"

	"github.com/talgya/gridworld/internal/calendar"
)

// EligibilityRule decides whether a person belongs in the marriage
// candidate index. The sets are derived state: they must always be
// re-derivable from person records via Rebuild.
type EligibilityRule struct {
	Sys    calendar.System
	MinAge int
	MaxAge int
}

// Eligible reports whether a living person is a marriage candidate now:
// unmarried and within the marriageable age bounds.
func (r EligibilityRule) Eligible(p *Person, now calendar.Date) bool {
	if p.FamilyID != nil {
		return false
	}
	age := r.Sys.YearsBetween(p.Born, now)
	return age >= r.MinAge && age <= r.MaxAge
}

// AddEligible inserts a person into their tile's candidate set and marks
// the tile as having candidates of that sex.
func (w *World) AddEligible(ctx context.Context, p *Person) error {
	if err := w.hot.SAdd(ctx, eligibleKey(p.Sex, p.TileID), formatID(p.ID)); err != nil {
		return fmt.Errorf("add eligible person %d: %w", p.ID, err)
	}
	if err := w.hot.SAdd(ctx, tilesWithEligibleKey(p.Sex), formatID(p.TileID)); err != nil {
		return fmt.Errorf("mark tile %d eligible: %w", p.TileID, err)
	}
	return nil
}

// RemoveEligible drops a person from their tile's candidate set. When the
// set empties, the tile is removed from the top-level set too.
func (w *World) RemoveEligible(ctx context.Context, p *Person) error {
	key := eligibleKey(p.Sex, p.TileID)
	if err := w.hot.SRem(ctx, key, formatID(p.ID)); err != nil {
		return fmt.Errorf("remove eligible person %d: %w", p.ID, err)
	}
	n, err := w.hot.SCard(ctx, key)
	if err := readErr(err); err != nil {
		return err
	}
	if n == 0 {
		if err := w.hot.SRem(ctx, tilesWithEligibleKey(p.Sex), formatID(p.TileID)); err != nil {
			return fmt.Errorf("unmark tile %d eligible: %w", p.TileID, err)
		}
	}
	return nil
}

// EligibleOnTile returns candidate person ids for one tile and sex,
// ascending by id.
func (w *World) EligibleOnTile(ctx context.Context, sex Sex, tileID uint64) ([]uint64, error) {
	members, err := w.hot.SMembers(ctx, eligibleKey(sex, tileID))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("eligible %s on tile %d: %w", sex, tileID, err)
	}
	return parseIDs(members)
}

// TilesWithEligible returns the tiles holding at least one candidate of
// the given sex.
func (w *World) TilesWithEligible(ctx context.Context, sex Sex) ([]uint64, error) {
	members, err := w.hot.SMembers(ctx, tilesWithEligibleKey(sex))
	if err := readErr(err); err != nil {
		return nil, fmt.Errorf("tiles with eligible %s: %w", sex, err)
	}
	return parseIDs(members)
}

// RebuildEligibility recomputes the candidate sets from person records and
// replaces the stored sets — for one tile, or for all when tileID is nil.
// Replacing rather than patching makes the operation idempotent: a second
// run over unchanged records writes identical sets.
func (w *World) RebuildEligibility(ctx context.Context, rule EligibilityRule, now calendar.Date, tileID *uint64) error {
	people, err := w.People(ctx)
	if err != nil {
		return err
	}

	// Desired sets, derived purely from the records.
	males := make(map[uint64][]string)
	females := make(map[uint64][]string)
	for _, p := range people {
		if tileID != nil && p.TileID != *tileID {
			continue
		}
		if !rule.Eligible(p, now) {
			continue
		}
		if p.Sex == SexFemale {
			females[p.TileID] = append(females[p.TileID], formatID(p.ID))
		} else {
			males[p.TileID] = append(males[p.TileID], formatID(p.ID))
		}
	}

	pipe := w.hot.Pipeline()

	// Drop stored sets in scope, then write the derived ones.
	if tileID == nil {
		keys, err := w.hot.Keys(ctx, "eligible:*")
		if err := readErr(err); err != nil {
			return fmt.Errorf("scan eligibility sets: %w", err)
		}
		pipe.Del(keys...)
		pipe.Del(keyTilesWithMales, keyTilesWithFemales)
	} else {
		pipe.Del(eligibleKey(SexMale, *tileID), eligibleKey(SexFemale, *tileID))
		pipe.SRem(keyTilesWithMales, formatID(*tileID))
		pipe.SRem(keyTilesWithFemales, formatID(*tileID))
	}

	for tile, ids := range males {
		pipe.SAdd(eligibleKey(SexMale, tile), ids...)
		pipe.SAdd(keyTilesWithMales, formatID(tile))
	}
	for tile, ids := range females {
		pipe.SAdd(eligibleKey(SexFemale, tile), ids...)
		pipe.SAdd(keyTilesWithFemales, formatID(tile))
	}

	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild eligibility: %w", err)
	}
	return nil
}
