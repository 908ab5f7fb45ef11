package demography

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/namegen"
	"github.com/talgya/gridworld/internal/state"
)

// Engine applies one simulated day of demographic change. All randomness
// flows through the injected source so runs are reproducible under a seed.
type Engine struct {
	world *state.World
	sys   calendar.System
	cfg   config.DemographyConfig
	alloc *ident.Allocator
	rng   *rand.Rand

	mortality MortalityCurve
}

// NewEngine wires a lifecycle engine over the shared world state.
func NewEngine(world *state.World, sys calendar.System, cfg config.DemographyConfig,
	alloc *ident.Allocator, rng *rand.Rand) *Engine {
	return &Engine{
		world:     world,
		sys:       sys,
		cfg:       cfg,
		alloc:     alloc,
		rng:       rng,
		mortality: NewMortalityCurve(cfg.Mortality, sys.DaysPerYear()),
	}
}

// Rule returns the eligibility rule derived from the engine's config.
func (e *Engine) Rule() state.EligibilityRule {
	return state.EligibilityRule{
		Sys:    e.sys,
		MinAge: e.cfg.MarriageMinAge,
		MaxAge: e.cfg.MarriageMaxAge,
	}
}

// Senescence evaluates the age-dependent death probability for every
// living person on one day. A fault on one person is logged and does not
// abort the pass. Returns the death count.
func (e *Engine) Senescence(ctx context.Context, now calendar.Date) int {
	people, err := e.world.People(ctx)
	if err != nil {
		slog.Warn("senescence pass skipped", "error", err)
		return 0
	}

	// Deterministic iteration order so seeded runs reproduce.
	ids := make([]uint64, 0, len(people))
	for id := range people {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	deaths := 0
	for _, id := range ids {
		p := people[id]
		age := e.sys.YearsBetween(p.Born, now)
		if e.rng.Float64() >= e.mortality.Daily(age) {
			continue
		}
		if err := e.die(ctx, p, now); err != nil {
			slog.Warn("death processing failed", "person", p.ID, "error", err)
			continue
		}
		deaths++
	}
	return deaths
}

// die removes a person from the world: eligibility, village membership,
// the housing slot, the record itself, and the spouse's marriage linkage.
// The family record is kept; dangling spouse references are a reported
// condition, not an error.
func (e *Engine) die(ctx context.Context, p *state.Person, now calendar.Date) error {
	if err := e.world.RemoveEligible(ctx, p); err != nil {
		return err
	}
	if err := e.world.DropMembership(ctx, p.ID); err != nil {
		return err
	}
	if err := e.vacateHousing(ctx, p); err != nil {
		return err
	}
	if err := e.world.DeletePerson(ctx, p.ID); err != nil {
		return err
	}
	if err := e.widowSpouse(ctx, p, now); err != nil {
		return err
	}
	if err := e.world.BumpCount(ctx, state.CountDeaths, 1); err != nil {
		return err
	}
	return e.world.BumpCount(ctx, state.CountPopulation, -1)
}

// vacateHousing frees the dead person's housing slot so the village record
// stays in step with its membership set and the freed capacity can be
// reassigned.
func (e *Engine) vacateHousing(ctx context.Context, p *state.Person) error {
	if p.Residency == nil {
		return nil
	}
	v, err := e.world.Village(ctx, *p.Residency)
	if err != nil || v == nil {
		return err
	}
	slots := v.HousingSlots[:0]
	for _, id := range v.HousingSlots {
		if id != p.ID {
			slots = append(slots, id)
		}
	}
	if len(slots) == len(v.HousingSlots) {
		return nil
	}
	v.HousingSlots = slots
	return e.world.PutVillage(ctx, v)
}

func (e *Engine) widowSpouse(ctx context.Context, dead *state.Person, now calendar.Date) error {
	if dead.FamilyID == nil {
		return nil
	}
	fam, err := e.world.Family(ctx, *dead.FamilyID)
	if err != nil || fam == nil {
		return err
	}
	// A pregnancy does not survive the mother. The father's death does not
	// end it; delivery still occurs.
	if dead.ID == fam.WifeID && fam.Pregnant {
		fam.Pregnant = false
		fam.DeliveryDate = nil
		if err := e.world.PutFamily(ctx, fam); err != nil {
			return err
		}
	}
	spouseID := fam.HusbandID
	if spouseID == dead.ID {
		spouseID = fam.WifeID
	}
	spouse, err := e.world.Person(ctx, spouseID)
	if err != nil || spouse == nil {
		return err
	}

	unlock := e.world.LockPeople(spouseID)
	defer unlock()

	spouse.FamilyID = nil
	if err := e.world.PutPerson(ctx, spouse); err != nil {
		return err
	}
	// Widowed people re-enter the candidate pool in the same step.
	if e.Rule().Eligible(spouse, now) {
		return e.world.AddEligible(ctx, spouse)
	}
	return nil
}

// Conceptions starts pregnancies for married couples whose wife is within
// the fertile ages, at the configured daily rate. Returns new pregnancies.
func (e *Engine) Conceptions(ctx context.Context, now calendar.Date) int {
	families, err := e.world.Families(ctx)
	if err != nil {
		slog.Warn("conception pass skipped", "error", err)
		return 0
	}

	ids := sortedFamilyIDs(families)
	started := 0
	for _, id := range ids {
		f := families[id]
		if f.Pregnant {
			continue
		}
		wife, err := e.world.Person(ctx, f.WifeID)
		if err != nil {
			slog.Warn("conception check failed", "family", f.ID, "error", err)
			continue
		}
		if wife == nil || wife.FamilyID == nil || *wife.FamilyID != f.ID {
			continue // widowed or repaired family
		}
		husband, err := e.world.Person(ctx, f.HusbandID)
		if err != nil || husband == nil {
			continue
		}
		age := e.sys.YearsBetween(wife.Born, now)
		if age < e.cfg.FertileMinAge || age > e.cfg.FertileMaxAge {
			continue
		}
		if e.rng.Float64() >= e.cfg.DailyConceptionRate {
			continue
		}

		due := e.sys.AddMonths(now, e.cfg.GestationMonths)
		f.Pregnant = true
		f.DeliveryDate = &due
		if err := e.world.PutFamily(ctx, f); err != nil {
			slog.Warn("conception write failed", "family", f.ID, "error", err)
			continue
		}
		started++
	}
	return started
}

// Births delivers every pregnancy whose due date has arrived: a new person
// is created on the parents' tile, appended to the family's children, and
// queued as a pending insert. Newborns do not enter the eligibility index;
// periodic reconciliation admits them when they come of age.
func (e *Engine) Births(ctx context.Context, now calendar.Date) int {
	families, err := e.world.Families(ctx)
	if err != nil {
		slog.Warn("birth pass skipped", "error", err)
		return 0
	}

	ids := sortedFamilyIDs(families)
	births := 0
	for _, id := range ids {
		f := families[id]
		if !f.Pregnant || f.DeliveryDate == nil || now.Before(*f.DeliveryDate) {
			continue
		}
		if err := e.deliver(ctx, f, now); err != nil {
			slog.Warn("delivery failed", "family", f.ID, "error", err)
			continue
		}
		births++
	}
	return births
}

func (e *Engine) deliver(ctx context.Context, f *state.Family, now calendar.Date) error {
	childID, err := e.alloc.Next(ctx, state.EntityPerson)
	if err != nil {
		return err
	}

	sex := state.SexMale
	if e.rng.Intn(2) == 1 {
		sex = state.SexFemale
	}
	// The mother is alive at delivery; her death would have ended the
	// pregnancy. The child carries her family name.
	var familyName string
	if mother, err := e.world.Person(ctx, f.WifeID); err != nil {
		return err
	} else if mother != nil {
		familyName = mother.LastName
	}
	child := &state.Person{
		ID:        childID,
		TileID:    f.TileID,
		FirstName: namegen.First(e.rng, sex == state.SexMale),
		LastName:  familyName,
		Sex:       sex,
		Born:      now,
	}
	if err := e.world.PutPerson(ctx, child); err != nil {
		return err
	}

	f.ChildrenIDs = append(f.ChildrenIDs, childID)
	f.Pregnant = false
	f.DeliveryDate = nil
	if err := e.world.PutFamily(ctx, f); err != nil {
		return err
	}

	if err := e.world.BumpCount(ctx, state.CountBirths, 1); err != nil {
		return err
	}
	return e.world.BumpCount(ctx, state.CountPopulation, 1)
}

// Reconcile recomputes the eligibility sets from person records: all
// tiles, or one when tileID is non-nil. Safe to run at any quiescent
// point; a second run is a no-op.
func (e *Engine) Reconcile(ctx context.Context, now calendar.Date, tileID *uint64) error {
	return e.world.RebuildEligibility(ctx, e.Rule(), now, tileID)
}

func sortedFamilyIDs(families map[uint64]*state.Family) []uint64 {
	ids := make([]uint64, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
