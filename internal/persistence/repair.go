package persistence

import (
	"context"
	"log/slog"
	"sort"

	"github.com/talgya/gridworld/internal/state"
)

// RepairReport lists what an integrity pass changed and what it could
// only observe.
type RepairReport struct {
	// MembershipsRemoved counts person ids stripped from village
	// membership sets they did not belong in.
	MembershipsRemoved int
	// DanglingSpouses lists family ids whose husband or wife record no
	// longer exists. These are reported, never deleted.
	DanglingSpouses []uint64
}

// Repair scans derived village membership sets against person residency
// and removes stale entries, and reports families referencing missing
// spouses. Running it twice in a row changes nothing the second time.
func (m *Manager) Repair(ctx context.Context) (*RepairReport, error) {
	report := &RepairReport{}

	sets, err := m.world.MembershipSets(ctx)
	if err != nil {
		return nil, err
	}

	// Resolve each membership set to the village occupying its chunk.
	villageBySet := make(map[string]uint64, len(sets))
	keys := make([]string, 0, len(sets))
	for key := range sets {
		keys = append(keys, key)
		tileID, chunk, ok := state.ParseMembershipKey(key)
		if !ok {
			slog.Warn("malformed membership set key", "set", key)
			continue
		}
		villages, err := m.world.VillagesOnTile(ctx, tileID)
		if err != nil {
			return nil, err
		}
		for _, v := range villages {
			if v.LandChunkIndex == chunk {
				villageBySet[key] = v.ID
				break
			}
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		villageID, known := villageBySet[key]
		for _, personID := range sets[key] {
			p, err := m.world.Person(ctx, personID)
			if err != nil {
				return nil, err
			}
			keep := known && p != nil && p.Residency != nil && *p.Residency == villageID
			if keep {
				continue
			}
			if err := m.world.RemoveMember(ctx, key, personID); err != nil {
				return nil, err
			}
			report.MembershipsRemoved++
			slog.Warn("stale village membership removed", "set", key, "person", personID)
		}
	}

	families, err := m.world.Families(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range families {
		husband, err := m.world.Person(ctx, f.HusbandID)
		if err != nil {
			return nil, err
		}
		wife, err := m.world.Person(ctx, f.WifeID)
		if err != nil {
			return nil, err
		}
		if husband == nil || wife == nil {
			report.DanglingSpouses = append(report.DanglingSpouses, f.ID)
			slog.Warn("family references missing spouse",
				"family", f.ID, "husband_missing", husband == nil, "wife_missing", wife == nil)
		}
	}
	sort.Slice(report.DanglingSpouses, func(i, j int) bool {
		return report.DanglingSpouses[i] < report.DanglingSpouses[j]
	})

	if report.MembershipsRemoved > 0 || len(report.DanglingSpouses) > 0 {
		slog.Info("integrity repair finished",
			"memberships_removed", report.MembershipsRemoved,
			"dangling_spouses", len(report.DanglingSpouses),
		)
	}
	return report, nil
}
