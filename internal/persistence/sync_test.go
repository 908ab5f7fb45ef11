package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/state"
	"github.com/talgya/gridworld/internal/store"
)

func testSystem() calendar.System {
	return calendar.System{DaysPerMonth: 12, MonthsPerYear: 8, EpochYear: 4000}
}

func testRule() state.EligibilityRule {
	return state.EligibilityRule{Sys: testSystem(), MinAge: 18, MaxAge: 57}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestManager(t *testing.T, db *DB) (*Manager, *state.World, *calendar.Clock) {
	t.Helper()
	w := state.New(store.NewMemory())
	clock := calendar.NewClock(testSystem(), time.Second, time.Millisecond)
	alloc := ident.New(w.Hot())
	return NewManager(db, w, clock, alloc, testRule()), w, clock
}

func personAged(id uint64, sex state.Sex, tile uint64, age int, now calendar.Date) *state.Person {
	sys := testSystem()
	return &state.Person{
		ID:     id,
		TileID: tile,
		Sex:    sex,
		Born:   sys.AddDays(now, -age*sys.DaysPerYear()),
	}
}

// seedSmallWorld writes one tile, one village, a married couple, and a
// single woman into the hot store.
func seedSmallWorld(t *testing.T, w *state.World, now calendar.Date) {
	t.Helper()
	ctx := context.Background()

	tile := &state.Tile{ID: 1, TerrainType: "flats", IsLand: true, IsHabitable: true, Biome: "plains", Fertility: 60}
	pipe := w.Hot().Pipeline()
	if err := w.PipePutTile(pipe, tile); err != nil {
		t.Fatalf("pipe tile: %v", err)
	}
	if err := pipe.Exec(ctx); err != nil {
		t.Fatalf("exec: %v", err)
	}
	vid := uint64(1)
	lands := []state.LandChunk{
		{Index: 0, LandType: state.LandCleared, Cleared: true, VillageID: &vid},
		{Index: 1, LandType: state.LandForest},
	}
	if err := w.PutTileLands(ctx, 1, lands); err != nil {
		t.Fatalf("put lands: %v", err)
	}

	v := &state.Village{ID: 1, TileID: 1, LandChunkIndex: 0, Name: "Millford", HousingCap: 10, FoodCapacity: 500, FoodRate: 10}
	if err := w.PutVillage(ctx, v); err != nil {
		t.Fatalf("put village: %v", err)
	}

	famID := uint64(1)
	husband := personAged(1, state.SexMale, 1, 30, now)
	husband.FirstName, husband.LastName = "Edmund", "Harrow"
	wife := personAged(2, state.SexFemale, 1, 28, now)
	husband.FamilyID, wife.FamilyID = &famID, &famID
	husband.Residency, wife.Residency = &vid, &vid
	single := personAged(3, state.SexFemale, 1, 25, now)
	for _, p := range []*state.Person{husband, wife, single} {
		if err := w.PutPerson(ctx, p); err != nil {
			t.Fatalf("put person: %v", err)
		}
		if p.Residency != nil {
			w.Hot().SAdd(ctx, w.MembershipKey(v), fmt.Sprintf("%d", p.ID))
		}
	}

	due := testSystem().AddMonths(now, 9)
	fam := &state.Family{ID: famID, HusbandID: 1, WifeID: 2, TileID: 1, Pregnant: true, DeliveryDate: &due}
	if err := w.PutFamily(ctx, fam); err != nil {
		t.Fatalf("put family: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, w, clock := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 2, Day: 5}
	if err := clock.SetDate(now); err != nil {
		t.Fatalf("set date: %v", err)
	}
	seedSmallWorld(t, w, now)

	report, err := m.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if report.Upserts != 6 {
		t.Fatalf("expected 6 upserts (1 tile, 1 village, 3 people, 1 family), got %d", report.Upserts)
	}

	// Markers are gone after a committed save.
	for _, kind := range state.EntityKinds() {
		if ins, _ := w.PendingInserts(ctx, kind); len(ins) != 0 {
			t.Fatalf("pending %s inserts survived the save: %v", kind, ins)
		}
	}

	// A second process loads the same database into an empty hot store.
	m2, w2, clock2 := newTestManager(t, db)
	var notified *LoadReport
	m2.OnLoaded = func(r LoadReport) { notified = &r }
	loaded, err := m2.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if notified == nil || notified.People != loaded.People {
		t.Fatalf("loaded notification not delivered: %+v", notified)
	}
	if loaded.People != 3 || loaded.Families != 1 || loaded.Villages != 1 || loaded.Tiles != 1 {
		t.Fatalf("unexpected load report: %+v", loaded)
	}
	if clock2.Now() != now {
		t.Fatalf("calendar date not restored: got %v, want %v", clock2.Now(), now)
	}

	fam, _ := w2.Family(ctx, 1)
	if fam == nil || !fam.Pregnant || fam.DeliveryDate == nil {
		t.Fatalf("pregnancy state lost in round trip: %+v", fam)
	}
	husband, _ := w2.Person(ctx, 1)
	if husband == nil || husband.FamilyID == nil || *husband.FamilyID != 1 || husband.Residency == nil {
		t.Fatalf("person links lost in round trip: %+v", husband)
	}
	if husband.FirstName != "Edmund" || husband.LastName != "Harrow" {
		t.Fatalf("person name lost in round trip: %q %q", husband.FirstName, husband.LastName)
	}
	lands, _ := w2.TileLands(ctx, 1)
	if len(lands) != 2 || lands[0].VillageID == nil {
		t.Fatalf("tile lands lost in round trip: %v", lands)
	}

	// Derived state is rebuilt, not loaded: the single woman is a candidate
	// again and village membership matches residency.
	singles, _ := w2.EligibleOnTile(ctx, state.SexFemale, 1)
	if len(singles) != 1 || singles[0] != 3 {
		t.Fatalf("eligibility not rebuilt: %v", singles)
	}
	v, _ := w2.Village(ctx, 1)
	if n, _ := w2.ResidentCount(ctx, v); n != 2 {
		t.Fatalf("membership not rebuilt: %d residents", n)
	}

	// Loaded worlds must not reissue loaded ids.
	alloc := ident.New(w2.Hot())
	id, err := alloc.Next(ctx, state.EntityPerson)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if id <= 3 {
		t.Fatalf("id %d collides with loaded people", id)
	}
}

func TestSavePersistsDeletes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, w, clock := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 2, Day: 5}
	clock.SetDate(now)
	seedSmallWorld(t, w, now)
	if _, err := m.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := w.DeletePerson(ctx, 3); err != nil {
		t.Fatalf("delete person: %v", err)
	}
	report, err := m.Save(ctx)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if report.Deletes != 1 {
		t.Fatalf("expected 1 delete, got %d", report.Deletes)
	}

	m2, w2, _ := newTestManager(t, db)
	if _, err := m2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if p, _ := w2.Person(ctx, 3); p != nil {
		t.Fatal("deleted person came back from the durable store")
	}
}

func TestDeleteBeforeFirstSaveNeverLands(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, w, clock := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 2, Day: 5}
	clock.SetDate(now)
	seedSmallWorld(t, w, now)

	// Created and deleted within one save window: the delete supersedes
	// the insert and the row never reaches the durable store.
	if err := w.DeletePerson(ctx, 3); err != nil {
		t.Fatalf("delete person: %v", err)
	}
	if _, err := m.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2, w2, _ := newTestManager(t, db)
	if _, err := m2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if p, _ := w2.Person(ctx, 3); p != nil {
		t.Fatal("superseded insert reached the durable store")
	}
}

func TestFailedSaveKeepsPendingMarkers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, w, clock := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 2, Day: 5}
	clock.SetDate(now)
	seedSmallWorld(t, w, now)

	db.Close()
	if _, err := m.Save(ctx); err == nil {
		t.Fatal("expected save against a closed database to fail")
	}

	inserts, _ := w.PendingInserts(ctx, state.EntityPerson)
	if len(inserts) != 3 {
		t.Fatalf("failed save must leave markers for retry, got %v", inserts)
	}
}

func TestClearWorldStateDropsPreviousWorld(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, w, clock := newTestManager(t, db)
	now := calendar.Date{Year: 4003, Month: 2, Day: 5}
	clock.SetDate(now)
	seedSmallWorld(t, w, now)
	if _, err := m.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A restart discards the hot store and the durable tables together;
	// ids start over at 1, so the next save cannot overwrite rows the
	// previous, bigger world left behind.
	if err := m.ClearWorldState(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if m.HasWorldState() {
		t.Fatal("cleared database still reports saved state")
	}
	if err := w.Hot().FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sole := personAged(1, state.SexMale, 1, 40, now)
	sole.FirstName, sole.LastName = "Wilmot", "Reed"
	if err := w.PutPerson(ctx, sole); err != nil {
		t.Fatalf("put person: %v", err)
	}
	if _, err := m.Save(ctx); err != nil {
		t.Fatalf("save reseeded world: %v", err)
	}

	m2, w2, _ := newTestManager(t, db)
	loaded, err := m2.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.People != 1 || loaded.Families != 0 || loaded.Villages != 0 || loaded.Tiles != 0 {
		t.Fatalf("rows from the previous world survived the clear: %+v", loaded)
	}
	if p, _ := w2.Person(ctx, 2); p != nil {
		t.Fatal("previous world's person resurfaced after the clear")
	}
	p1, _ := w2.Person(ctx, 1)
	if p1 == nil || p1.FirstName != "Wilmot" {
		t.Fatalf("reseeded person not loaded: %+v", p1)
	}
}

func TestLoadWithoutSavedWorldFails(t *testing.T) {
	db := openTestDB(t)
	m, _, _ := newTestManager(t, db)

	if db.HasWorldState() {
		t.Fatal("fresh database must not report saved state")
	}
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatal("expected load of an empty database to fail")
	}
}
