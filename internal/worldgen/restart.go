package worldgen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/namegen"
	"github.com/talgya/gridworld/internal/state"
	"github.com/talgya/gridworld/internal/terrain"
	"github.com/talgya/gridworld/internal/village"
)

// Seeder builds a fresh world from scratch: terrain, people, villages,
// residency. Everything downstream of the seed is deterministic.
type Seeder struct {
	world  *state.World
	sys    calendar.System
	clock  *calendar.Clock
	alloc  *ident.Allocator
	assign *village.Assigner
	rule   state.EligibilityRule
	cfg    config.SeedingConfig
}

// NewSeeder wires a seeder.
func NewSeeder(world *state.World, sys calendar.System, clock *calendar.Clock,
	alloc *ident.Allocator, rule state.EligibilityRule, cfg config.SeedingConfig) *Seeder {
	return &Seeder{
		world:  world,
		sys:    sys,
		clock:  clock,
		alloc:  alloc,
		assign: village.NewAssigner(world),
		rule:   rule,
		cfg:    cfg,
	}
}

// RestartResult describes one completed world restart.
type RestartResult struct {
	RunID   string
	Seed    int64
	Elapsed time.Duration
	Report  IntegrityReport
}

// IntegrityReport is the post-seed verification summary. Issues are
// observations, not failures; a restart with issues still succeeded.
// Unhoused people are a planned remainder of capacity-bounded housing,
// counted here but never treated as an issue.
type IntegrityReport struct {
	Valid          bool
	Tiles          int
	HabitableTiles int
	PopulatedTiles int
	People         int
	Villages       int
	WithResidency  int
	Unhoused       int
	Issues         []string
}

// Restart wipes the hot store and seeds a brand new world for the given
// seed. The scheduler is paused while the world is rebuilt and resumes
// afterwards if it was running. The durable store is not touched here;
// the caller clears it after a successful reseed (see the sim package),
// and the first save then writes the whole seeded world because every
// seeded record carries a pending-insert marker.
func (s *Seeder) Restart(ctx context.Context, seed int64) (*RestartResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	slog.Info("world restart", "run_id", runID, "seed", seed)

	wasRunning := s.clock.Running()
	speed := s.clock.Speed()
	if wasRunning {
		s.clock.Stop()
	}

	if err := s.world.Hot().FlushAll(ctx); err != nil {
		return nil, fmt.Errorf("flush hot store: %w", err)
	}
	if err := s.alloc.ResetAll(ctx); err != nil {
		return nil, fmt.Errorf("reset id counters: %w", err)
	}

	now := s.sys.Epoch()
	if err := s.clock.SetDate(now); err != nil {
		return nil, fmt.Errorf("reset calendar: %w", err)
	}

	surface := terrain.Generate(terrain.DefaultConfig(s.cfg.TileCount, seed))
	if err := s.storeSurface(ctx, surface); err != nil {
		return nil, err
	}
	if err := s.alloc.SetFloor(ctx, state.EntityTile, uint64(len(surface.Tiles))); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	chosen, err := s.pickTiles(surface, rng)
	if err != nil {
		return nil, err
	}

	for _, t := range chosen {
		if err := s.seedTile(ctx, t, surface.Lands[t.ID], now, rng); err != nil {
			return nil, fmt.Errorf("seed tile %d: %w", t.ID, err)
		}
	}

	if err := s.world.RebuildEligibility(ctx, s.rule, now, nil); err != nil {
		return nil, err
	}
	if err := s.world.ResetCounts(ctx); err != nil {
		return nil, err
	}

	report, err := s.verify(ctx, surface, chosen)
	if err != nil {
		return nil, err
	}

	if wasRunning {
		s.clock.Start(speed)
	}

	res := &RestartResult{
		RunID:   runID,
		Seed:    seed,
		Elapsed: time.Since(start),
		Report:  *report,
	}
	slog.Info("world restart finished",
		"run_id", runID,
		"people", report.People,
		"villages", report.Villages,
		"populated_tiles", report.PopulatedTiles,
		"issues", len(report.Issues),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (s *Seeder) storeSurface(ctx context.Context, surface *terrain.Result) error {
	pipe := s.world.Hot().Pipeline()
	for _, t := range surface.Tiles {
		if err := s.world.PipePutTile(pipe, t); err != nil {
			return err
		}
		if lands, ok := surface.Lands[t.ID]; ok {
			if err := s.world.PipePutTileLands(pipe, t.ID, lands); err != nil {
				return err
			}
		}
	}
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store terrain: %w", err)
	}
	return nil
}

// pickTiles selects the populated tiles without replacement from the
// habitable tiles that have at least one cleared chunk. Candidates are
// visited in tile-id order so the draw depends only on the seed.
func (s *Seeder) pickTiles(surface *terrain.Result, rng *rand.Rand) ([]*state.Tile, error) {
	var candidates []*state.Tile
	for _, t := range surface.Tiles {
		if !t.IsHabitable {
			continue
		}
		if firstCleared(surface.Lands[t.ID]) < 0 {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) < s.cfg.PopulatedTiles {
		return nil, fmt.Errorf("only %d habitable tiles with cleared land, need %d",
			len(candidates), s.cfg.PopulatedTiles)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:s.cfg.PopulatedTiles], nil
}

func (s *Seeder) seedTile(ctx context.Context, t *state.Tile, lands []state.LandChunk,
	now calendar.Date, rng *rand.Rand) error {
	count := s.cfg.MinPeoplePerTile + rng.Intn(s.cfg.MaxPeoplePerTile-s.cfg.MinPeoplePerTile+1)
	daysPerYear := s.sys.DaysPerYear()

	pipe := s.world.Hot().Pipeline()
	for i := 0; i < count; i++ {
		id, err := s.alloc.Next(ctx, state.EntityPerson)
		if err != nil {
			return err
		}
		age := s.cfg.MinSeedAge + rng.Intn(s.cfg.MaxSeedAge-s.cfg.MinSeedAge+1)
		sex := state.Sex(rng.Intn(2))
		p := &state.Person{
			ID:        id,
			TileID:    t.ID,
			FirstName: namegen.First(rng, sex == state.SexMale),
			LastName:  namegen.Last(rng),
			Sex:       sex,
			Born:      s.sys.AddDays(now, -(age*daysPerYear + rng.Intn(daysPerYear))),
		}
		if err := s.world.PipePutPerson(pipe, p); err != nil {
			return err
		}
	}

	chunk := firstCleared(lands)
	villageID, err := s.alloc.Next(ctx, state.EntityVillage)
	if err != nil {
		return err
	}
	v := &state.Village{
		ID:             villageID,
		TileID:         t.ID,
		LandChunkIndex: chunk,
		Name:           villageName(rng),
		HousingCap:     s.cfg.VillageCapacity,
		FoodStores:     0,
		FoodCapacity:   s.cfg.VillageFoodCapacity,
		FoodRate:       s.cfg.VillageFoodRate,
	}
	if err := s.world.PipePutVillage(pipe, v); err != nil {
		return err
	}
	lands[chunk].VillageID = &villageID
	if err := s.world.PipePutTileLands(pipe, t.ID, lands); err != nil {
		return err
	}
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store seeded records: %w", err)
	}

	if _, err := s.assign.AssignTile(ctx, t.ID); err != nil {
		return fmt.Errorf("assign residency: %w", err)
	}
	return nil
}

func (s *Seeder) verify(ctx context.Context, surface *terrain.Result,
	chosen []*state.Tile) (*IntegrityReport, error) {
	report := &IntegrityReport{
		Tiles:          len(surface.Tiles),
		PopulatedTiles: len(chosen),
	}
	for _, t := range surface.Tiles {
		if t.IsHabitable {
			report.HabitableTiles++
		}
	}

	villages, err := s.world.Villages(ctx)
	if err != nil {
		return nil, err
	}
	report.Villages = len(villages)

	people, err := s.world.People(ctx)
	if err != nil {
		return nil, err
	}
	report.People = len(people)
	for _, p := range people {
		if p.Residency == nil {
			report.Unhoused++
			continue
		}
		report.WithResidency++
		if villages[*p.Residency] == nil {
			report.Issues = append(report.Issues,
				fmt.Sprintf("person %d resides in village %d which does not exist",
					p.ID, *p.Residency))
		}
	}

	tileByID := make(map[uint64]*state.Tile, len(surface.Tiles))
	for _, t := range surface.Tiles {
		tileByID[t.ID] = t
	}
	for _, v := range villages {
		t := tileByID[v.TileID]
		if t == nil || !t.IsHabitable {
			report.Issues = append(report.Issues,
				fmt.Sprintf("village %d sits on uninhabitable tile %d", v.ID, v.TileID))
		}
	}

	for _, t := range chosen {
		vs, err := s.world.VillagesOnTile(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if len(vs) == 0 {
			report.Issues = append(report.Issues,
				fmt.Sprintf("populated tile %d has no village", t.ID))
			continue
		}
		for _, v := range vs {
			n, err := s.world.ResidentCount(ctx, v)
			if err != nil {
				return nil, err
			}
			if n > v.HousingCap {
				report.Issues = append(report.Issues,
					fmt.Sprintf("village %d over capacity: %d/%d", v.ID, n, v.HousingCap))
			}
		}
	}
	for _, issue := range report.Issues {
		slog.Warn("world verification", "issue", issue)
	}
	report.Valid = len(report.Issues) == 0
	return report, nil
}

func firstCleared(lands []state.LandChunk) int {
	for _, c := range lands {
		if c.Cleared || c.LandType == state.LandCleared {
			return c.Index
		}
	}
	return -1
}

var (
	namePrefixes = []string{"Ash", "Barrow", "Cinder", "Dun", "Elm", "Fen", "Glen", "Hazel", "Iron", "Mill"}
	nameSuffixes = []string{"brook", "crest", "dale", "ford", "gate", "hollow", "mere", "ridge", "stead", "wick"}
)

func villageName(rng *rand.Rand) string {
	return namePrefixes[rng.Intn(len(namePrefixes))] + nameSuffixes[rng.Intn(len(nameSuffixes))]
}
