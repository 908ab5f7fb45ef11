package demography

import (
	"context"
	"math/rand"
	"testing"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/state"
	"github.com/talgya/gridworld/internal/store"
	"github.com/talgya/gridworld/internal/village"
)

func testSystem() calendar.System {
	return calendar.System{DaysPerMonth: 12, MonthsPerYear: 8, EpochYear: 4000}
}

func testConfig() config.DemographyConfig {
	return config.DemographyConfig{
		Mortality: []config.MortalityBracket{
			{FromAge: 0, Annual: 0},
			{FromAge: 80, Annual: 1},
		},
		MarriageMinAge:      18,
		MarriageMaxAge:      57,
		MarriageMaxAgeDiff:  15,
		FertileMinAge:       18,
		FertileMaxAge:       40,
		DailyConceptionRate: 1,
		GestationMonths:     9,
	}
}

func newTestEngine(t *testing.T, cfg config.DemographyConfig) (*Engine, *state.World) {
	t.Helper()
	w := state.New(store.NewMemory())
	alloc := ident.New(w.Hot())
	return NewEngine(w, testSystem(), cfg, alloc, rand.New(rand.NewSource(7))), w
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

// marryCouple writes a married pair and their family record directly.
func marryCouple(t *testing.T, w *state.World, famID uint64, husband, wife *state.Person) *state.Family {
	t.Helper()
	ctx := context.Background()
	husband.FamilyID = &famID
	wife.FamilyID = &famID
	for _, p := range []*state.Person{husband, wife} {
		if err := w.PutPerson(ctx, p); err != nil {
			t.Fatalf("put person: %v", err)
		}
	}
	fam := &state.Family{ID: famID, HusbandID: husband.ID, WifeID: wife.ID, TileID: husband.TileID}
	if err := w.PutFamily(ctx, fam); err != nil {
		t.Fatalf("put family: %v", err)
	}
	return fam
}

func TestMortalityCurve(t *testing.T) {
	curve := NewMortalityCurve(testConfig().Mortality, 96)

	if got := curve.Annual(30); got != 0 {
		t.Fatalf("expected 0 below the fatal bracket, got %v", got)
	}
	if got := curve.Annual(85); got != 1 {
		t.Fatalf("expected 1 in the fatal bracket, got %v", got)
	}
	if got := curve.Daily(30); got != 0 {
		t.Fatalf("expected daily 0, got %v", got)
	}
	if got := curve.Daily(85); got != 1 {
		t.Fatalf("expected daily 1, got %v", got)
	}

	// Default table: daily probability stays a probability at every age.
	def := NewMortalityCurve(config.Default().Demography.Mortality, 96)
	for age := 0; age <= 120; age++ {
		d := def.Daily(age)
		if d < 0 || d > 1 {
			t.Fatalf("daily probability %v out of range at age %d", d, age)
		}
	}
}

func TestSenescenceRemovesDeadAndWidowsSpouse(t *testing.T) {
	ctx := context.Background()
	e, w := newTestEngine(t, testConfig())
	now := calendar.Date{Year: 4000, Month: 1, Day: 2}

	old := personAged(1, state.SexMale, 1, 90, now)
	wife := personAged(2, state.SexFemale, 1, 30, now)
	marryCouple(t, w, 1, old, wife)

	// The dead man holds a village slot.
	residency := uint64(1)
	old.Residency = &residency
	if err := w.PutPerson(ctx, old); err != nil {
		t.Fatalf("put person: %v", err)
	}
	w.Hot().SAdd(ctx, "village:1:0:people", "1")

	deaths := e.Senescence(ctx, now)
	if deaths != 1 {
		t.Fatalf("expected 1 death, got %d", deaths)
	}

	if p, _ := w.Person(ctx, 1); p != nil {
		t.Fatal("dead person record must be removed")
	}
	if ok, _ := w.Hot().SIsMember(ctx, "village:1:0:people", "1"); ok {
		t.Fatal("dead person must leave their village membership set")
	}

	widow, _ := w.Person(ctx, 2)
	if widow == nil || widow.FamilyID != nil {
		t.Fatalf("surviving spouse must be widowed, got %+v", widow)
	}
	eligible, _ := w.EligibleOnTile(ctx, state.SexFemale, 1)
	if len(eligible) != 1 || eligible[0] != 2 {
		t.Fatalf("widow must re-enter the candidate pool, got %v", eligible)
	}

	// The family record survives; the dangling husband reference is for
	// the repair pass to report.
	fam, _ := w.Family(ctx, 1)
	if fam == nil || fam.HusbandID != 1 {
		t.Fatalf("family record must be kept, got %+v", fam)
	}

	deletes, _ := w.PendingDeletes(ctx, state.EntityPerson)
	if len(deletes) != 1 || deletes[0] != 1 {
		t.Fatalf("death must queue a pending delete, got %v", deletes)
	}
}

func TestConceptionToBirthTimeline(t *testing.T) {
	ctx := context.Background()
	e, w := newTestEngine(t, testConfig())
	now := calendar.Date{Year: 4000, Month: 1, Day: 2}

	husband := personAged(1, state.SexMale, 4, 28, now)
	wife := personAged(2, state.SexFemale, 4, 25, now)
	wife.LastName = "Calloway"
	marryCouple(t, w, 1, husband, wife)

	if started := e.Conceptions(ctx, now); started != 1 {
		t.Fatalf("expected 1 conception at rate 1, got %d", started)
	}

	fam, _ := w.Family(ctx, 1)
	if !fam.Pregnant || fam.DeliveryDate == nil {
		t.Fatalf("expected pregnancy, got %+v", fam)
	}
	due := testSystem().AddMonths(now, 9)
	if *fam.DeliveryDate != due {
		t.Fatalf("expected delivery on %v, got %v", due, *fam.DeliveryDate)
	}

	// A second pass must not restart an active pregnancy.
	if started := e.Conceptions(ctx, now); started != 0 {
		t.Fatal("pregnant family conceived again")
	}

	// The day before the due date nothing happens.
	if births := e.Births(ctx, testSystem().AddDays(due, -1)); births != 0 {
		t.Fatalf("expected no early delivery, got %d", births)
	}

	if births := e.Births(ctx, due); births != 1 {
		t.Fatalf("expected 1 birth on the due date, got %d", births)
	}

	fam, _ = w.Family(ctx, 1)
	if fam.Pregnant || fam.DeliveryDate != nil {
		t.Fatalf("pregnancy must end at delivery, got %+v", fam)
	}
	if len(fam.ChildrenIDs) != 1 {
		t.Fatalf("expected 1 child, got %v", fam.ChildrenIDs)
	}

	child, _ := w.Person(ctx, fam.ChildrenIDs[0])
	if child == nil {
		t.Fatal("child record missing")
	}
	if child.TileID != 4 || child.Born != due {
		t.Fatalf("child must be born on the family tile on the due date, got %+v", child)
	}
	if child.FirstName == "" || child.LastName != "Calloway" {
		t.Fatalf("child must be named after the mother's family, got %q %q",
			child.FirstName, child.LastName)
	}

	// Newborns stay out of the candidate index until reconciliation admits
	// them at marriageable age.
	for _, sex := range []state.Sex{state.SexMale, state.SexFemale} {
		ids, _ := w.EligibleOnTile(ctx, sex, 4)
		for _, id := range ids {
			if id == child.ID {
				t.Fatal("newborn must not be in the eligibility index")
			}
		}
	}
}

func TestDeathFreesHousingSlot(t *testing.T) {
	ctx := context.Background()
	e, w := newTestEngine(t, testConfig())
	now := calendar.Date{Year: 4000, Month: 1, Day: 2}

	old := personAged(1, state.SexMale, 1, 90, now)
	residency := uint64(1)
	old.Residency = &residency
	if err := w.PutPerson(ctx, old); err != nil {
		t.Fatalf("put person: %v", err)
	}
	v := &state.Village{ID: 1, TileID: 1, LandChunkIndex: 0, Name: "Fenwick",
		HousingCap: 1, HousingSlots: []uint64{1}}
	if err := w.PutVillage(ctx, v); err != nil {
		t.Fatalf("put village: %v", err)
	}
	w.Hot().SAdd(ctx, w.MembershipKey(v), "1")

	if deaths := e.Senescence(ctx, now); deaths != 1 {
		t.Fatalf("expected 1 death, got %d", deaths)
	}
	v, _ = w.Village(ctx, 1)
	if len(v.HousingSlots) != 0 {
		t.Fatalf("dead person must vacate their housing slot, got %v", v.HousingSlots)
	}

	// The freed slot is assignable again and the slots list never exceeds
	// capacity or keeps dead ids.
	if err := w.PutPerson(ctx, personAged(2, state.SexFemale, 1, 30, now)); err != nil {
		t.Fatalf("put person: %v", err)
	}
	if _, err := village.NewAssigner(w).AssignTile(ctx, 1); err != nil {
		t.Fatalf("assign tile: %v", err)
	}
	v, _ = w.Village(ctx, 1)
	if len(v.HousingSlots) != 1 || v.HousingSlots[0] != 2 {
		t.Fatalf("expected slots [2], got %v", v.HousingSlots)
	}
}

func TestConceptionSkipsWidowedAndInfertile(t *testing.T) {
	ctx := context.Background()
	e, w := newTestEngine(t, testConfig())
	now := calendar.Date{Year: 4000, Month: 1, Day: 2}

	// Family 1: wife widowed (family link cleared on her record).
	h1 := personAged(1, state.SexMale, 1, 30, now)
	w1 := personAged(2, state.SexFemale, 1, 30, now)
	marryCouple(t, w, 1, h1, w1)
	w1.FamilyID = nil
	if err := w.PutPerson(ctx, w1); err != nil {
		t.Fatalf("put person: %v", err)
	}

	// Family 2: wife beyond the fertile window.
	h2 := personAged(3, state.SexMale, 1, 50, now)
	w2 := personAged(4, state.SexFemale, 1, 45, now)
	marryCouple(t, w, 2, h2, w2)

	if started := e.Conceptions(ctx, now); started != 0 {
		t.Fatalf("expected no conceptions, got %d", started)
	}
}
