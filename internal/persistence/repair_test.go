package persistence

import (
	"context"
	"testing"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/state"
)

func TestRepairRemovesDuplicateMemberships(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m, w, _ := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 1, Day: 1}

	for vid := uint64(1); vid <= 2; vid++ {
		v := &state.Village{ID: vid, TileID: vid, LandChunkIndex: 0, Name: "Glenmere", HousingCap: 10}
		if err := w.PutVillage(ctx, v); err != nil {
			t.Fatalf("put village: %v", err)
		}
	}

	home := uint64(1)
	p := personAged(1, state.SexMale, 1, 30, now)
	p.Residency = &home
	if err := w.PutPerson(ctx, p); err != nil {
		t.Fatalf("put person: %v", err)
	}

	// The person holds slots in two villages; only the one matching their
	// residency is legitimate.
	w.Hot().SAdd(ctx, "village:1:0:people", "1")
	w.Hot().SAdd(ctx, "village:2:0:people", "1")

	report, err := m.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.MembershipsRemoved != 1 {
		t.Fatalf("expected 1 removal, got %d", report.MembershipsRemoved)
	}
	if ok, _ := w.Hot().SIsMember(ctx, "village:1:0:people", "1"); !ok {
		t.Fatal("legitimate membership removed")
	}
	if ok, _ := w.Hot().SIsMember(ctx, "village:2:0:people", "1"); ok {
		t.Fatal("duplicate membership survived")
	}

	// Idempotent: a second pass finds nothing to fix.
	report, err = m.Repair(ctx)
	if err != nil {
		t.Fatalf("repair again: %v", err)
	}
	if report.MembershipsRemoved != 0 {
		t.Fatalf("second pass removed %d memberships", report.MembershipsRemoved)
	}
}

func TestRepairRemovesUnresidedFromAllSets(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m, w, _ := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 1, Day: 1}

	v := &state.Village{ID: 1, TileID: 1, LandChunkIndex: 0, Name: "Ashdale", HousingCap: 10}
	if err := w.PutVillage(ctx, v); err != nil {
		t.Fatalf("put village: %v", err)
	}
	if err := w.PutPerson(ctx, personAged(1, state.SexMale, 1, 30, now)); err != nil {
		t.Fatalf("put person: %v", err)
	}
	// No residency on the record, yet a set claims them. Ghost id 99 has
	// no record at all.
	w.Hot().SAdd(ctx, "village:1:0:people", "1", "99")

	report, err := m.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.MembershipsRemoved != 2 {
		t.Fatalf("expected 2 removals, got %d", report.MembershipsRemoved)
	}
	if n, _ := w.Hot().SCard(ctx, "village:1:0:people"); n != 0 {
		t.Fatalf("expected empty membership set, got %d members", n)
	}
}

func TestRepairReportsDanglingSpouses(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m, w, _ := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 1, Day: 1}

	famID := uint64(1)
	wife := personAged(2, state.SexFemale, 1, 30, now)
	wife.FamilyID = &famID
	if err := w.PutPerson(ctx, wife); err != nil {
		t.Fatalf("put person: %v", err)
	}
	// Husband id 1 has no record: he died and his record was removed.
	fam := &state.Family{ID: famID, HusbandID: 1, WifeID: 2, TileID: 1}
	if err := w.PutFamily(ctx, fam); err != nil {
		t.Fatalf("put family: %v", err)
	}

	report, err := m.Repair(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(report.DanglingSpouses) != 1 || report.DanglingSpouses[0] != famID {
		t.Fatalf("expected family %d reported, got %v", famID, report.DanglingSpouses)
	}

	// Reported, never deleted.
	if f, _ := w.Family(ctx, famID); f == nil {
		t.Fatal("repair must not delete families")
	}
}
