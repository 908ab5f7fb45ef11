// Package sim is the composition root: it owns the advisory simulation
// lock and drives the demographic passes, residency assignment, derived
// index reconciliation, and autosaves off the calendar clock.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/demography"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/persistence"
	"github.com/talgya/gridworld/internal/state"
	"github.com/talgya/gridworld/internal/village"
	"github.com/talgya/gridworld/internal/worldgen"
)

// Simulation ties the clock to the world. All tick processing and every
// manual operation (save, load, restart) runs under the world's advisory
// lock, so they serialize against each other.
type Simulation struct {
	world   *state.World
	sys     calendar.System
	clock   *calendar.Clock
	engine  *demography.Engine
	assign  *village.Assigner
	seeder  *worldgen.Seeder
	persist *persistence.Manager
	cfg     config.Config

	daysSinceSave int
}

// New wires the full simulation. The seed feeds the demographic random
// source; world generation takes its own seed at restart. The clock is
// not started; callers use Start, or Step in tests.
func New(world *state.World, db *persistence.DB, cfg config.Config, seed int64) (*Simulation, error) {
	sys := calendar.System{
		DaysPerMonth:  cfg.Calendar.DaysPerMonth,
		MonthsPerYear: cfg.Calendar.MonthsPerYear,
		EpochYear:     cfg.Calendar.EpochYear,
	}
	alloc := ident.New(world.Hot())
	rng := rand.New(rand.NewSource(seed + 1))
	engine := demography.NewEngine(world, sys, cfg.Demography, alloc, rng)
	rule := engine.Rule()

	clock := calendar.NewClock(sys, cfg.Calendar.DailyInterval, cfg.Calendar.MonthlyInterval)

	s := &Simulation{
		world:   world,
		sys:     sys,
		clock:   clock,
		engine:  engine,
		assign:  village.NewAssigner(world),
		seeder:  worldgen.NewSeeder(world, sys, clock, alloc, rule, cfg.Seeding),
		persist: persistence.NewManager(db, world, clock, alloc, rule),
		cfg:     cfg,
	}
	clock.OnTick(s.tick)
	return s, nil
}

// Clock exposes the calendar clock for speed control and test stepping.
func (s *Simulation) Clock() *calendar.Clock { return s.clock }

// Start begins ticking at the given speed.
func (s *Simulation) Start(speed calendar.Speed) { s.clock.Start(speed) }

// Stop pauses the clock. In-flight tick processing completes.
func (s *Simulation) Stop() { s.clock.Stop() }

// tick is the per-day pass. Faults inside individual passes are logged
// by the passes themselves; a fault never stops the day.
func (s *Simulation) tick(now calendar.Date) {
	ctx := context.Background()
	s.world.LockSim()
	defer s.world.UnlockSim()

	deaths := s.engine.Senescence(ctx, now)
	marriages := s.engine.Matchmake(ctx, now)
	conceptions := s.engine.Conceptions(ctx, now)
	births := s.engine.Births(ctx, now)

	if births > 0 || deaths > 0 {
		s.houseUnresided(ctx)
	}

	// Start of each month: rebuild derived eligibility from records and
	// log the day's aggregates.
	if now.Day == 1 {
		if err := s.engine.Reconcile(ctx, now, nil); err != nil {
			slog.Error("eligibility reconcile failed", "error", err)
		}
		s.logCounts(ctx, now, deaths, marriages, conceptions, births)
	}

	s.daysSinceSave++
	if s.cfg.Seeding.AutosaveDays > 0 && s.daysSinceSave >= s.cfg.Seeding.AutosaveDays {
		if _, err := s.persist.Save(ctx); err != nil {
			slog.Error("autosave failed", "error", err)
		} else {
			s.daysSinceSave = 0
		}
	}
}

// houseUnresided assigns residency on every tile that has people without
// a village slot.
func (s *Simulation) houseUnresided(ctx context.Context) {
	people, err := s.world.People(ctx)
	if err != nil {
		slog.Error("residency scan failed", "error", err)
		return
	}
	tiles := make(map[uint64]bool)
	for _, p := range people {
		if p.Residency == nil {
			tiles[p.TileID] = true
		}
	}
	for tileID := range tiles {
		if _, err := s.assign.AssignTile(ctx, tileID); err != nil {
			slog.Error("residency assignment failed", "tile", tileID, "error", err)
		}
	}
}

func (s *Simulation) logCounts(ctx context.Context, now calendar.Date,
	deaths, marriages, conceptions, births int) {
	counts, err := s.world.Counts(ctx)
	if err != nil {
		slog.Error("read counts failed", "error", err)
		return
	}
	slog.Info("month begins",
		"date", now,
		"population", counts.Population,
		"deaths_today", deaths,
		"marriages_today", marriages,
		"conceptions_today", conceptions,
		"births_today", births,
	)
}

// Save runs a durable save under the advisory lock.
func (s *Simulation) Save(ctx context.Context) (*persistence.SaveReport, error) {
	s.world.LockSim()
	defer s.world.UnlockSim()
	return s.persist.Save(ctx)
}

// Load replaces the hot store from the durable store, then runs the
// integrity repair pass over the restored state.
func (s *Simulation) Load(ctx context.Context) (*persistence.LoadReport, error) {
	s.world.LockSim()
	defer s.world.UnlockSim()
	report, err := s.persist.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.persist.Repair(ctx); err != nil {
		return nil, fmt.Errorf("post-load repair: %w", err)
	}
	s.daysSinceSave = 0
	return report, nil
}

// Restart seeds a brand new world under the advisory lock. The durable
// store is cleared once the reseed succeeds, so a later load cannot
// resurrect rows from the previous world.
func (s *Simulation) Restart(ctx context.Context, seed int64) (*worldgen.RestartResult, error) {
	s.world.LockSim()
	defer s.world.UnlockSim()
	res, err := s.seeder.Restart(ctx, seed)
	if err != nil {
		return nil, err
	}
	if err := s.persist.ClearWorldState(ctx); err != nil {
		return nil, fmt.Errorf("clear previous world: %w", err)
	}
	s.daysSinceSave = 0
	return res, nil
}

// HasSavedWorld reports whether the durable store holds a prior world.
func (s *Simulation) HasSavedWorld() bool {
	return s.persist.HasWorldState()
}
