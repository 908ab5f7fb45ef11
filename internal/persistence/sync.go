package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/ident"
	"github.com/talgya/gridworld/internal/state"
)

// Manager runs synchronization between the hot and durable stores. It does not
// acquire the simulation advisory lock itself; callers serialize save,
// load, and tick processing (see the sim package).
type Manager struct {
	db    *DB
	world *state.World
	clock *calendar.Clock
	alloc *ident.Allocator
	rule  state.EligibilityRule

	// OnLoaded, when set, is invoked after a completed load.
	OnLoaded func(LoadReport)
}

// NewManager wires a sync manager.
func NewManager(db *DB, world *state.World, clock *calendar.Clock,
	alloc *ident.Allocator, rule state.EligibilityRule) *Manager {
	return &Manager{db: db, world: world, clock: clock, alloc: alloc, rule: rule}
}

// HasWorldState reports whether the durable store holds a completed save.
func (m *Manager) HasWorldState() bool {
	return m.db.HasWorldState()
}

// SaveReport summarizes one durable save.
type SaveReport struct {
	Upserts int
	Deletes int
	Elapsed time.Duration
}

// LoadReport summarizes one durable load.
type LoadReport struct {
	People   int
	Families int
	Villages int
	Tiles    int
	Date     calendar.Date
}

// ClearWorldState empties every world table in one transaction. A restart
// calls it after reseeding so rows from the previous world cannot survive
// and resurface on the next load; ids restart at 1 after a reseed, so a
// bigger previous world would otherwise leave rows beyond the reach of
// the new world's upserts.
func (m *Manager) ClearWorldState(ctx context.Context) error {
	tx, err := m.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"people", "family", "villages", "tiles", "tiles_lands", "world_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear transaction: %w", err)
	}
	slog.Info("durable world state cleared")
	return nil
}

// Save flushes all pending changes to the durable store in one
// transaction. Pending markers are cleared only after the commit
// succeeds; a failed save leaves them untouched so a retry covers the
// same set. Upserts are full record replacements, so retries are safe.
func (m *Manager) Save(ctx context.Context) (*SaveReport, error) {
	start := time.Now()

	// Capture the marker sets up front. Changes that land while the save
	// runs accrue new markers and ride the next save.
	type pend struct{ inserts, deletes []uint64 }
	pending := make(map[string]pend)
	for _, kind := range state.EntityKinds() {
		ins, err := m.world.PendingInserts(ctx, kind)
		if err != nil {
			return nil, err
		}
		del, err := m.world.PendingDeletes(ctx, kind)
		if err != nil {
			return nil, err
		}
		pending[kind] = pend{inserts: ins, deletes: del}
	}

	tx, err := m.db.conn.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback()

	report := &SaveReport{}

	for _, id := range pending[state.EntityTile].inserts {
		t, err := m.world.Tile(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		row := toTileRow(t)
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO tiles
			(id, terrain_type, is_land, is_habitable, biome, fertility)
			VALUES (:id, :terrain_type, :is_land, :is_habitable, :biome, :fertility)`, row); err != nil {
			return nil, fmt.Errorf("upsert tile %d: %w", id, err)
		}
		lands, err := m.world.TileLands(ctx, id)
		if err != nil {
			return nil, err
		}
		landsJSON, err := json.Marshal(lands)
		if err != nil {
			return nil, fmt.Errorf("encode lands of tile %d: %w", id, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO tiles_lands (tile_id, lands_json) VALUES (?, ?)`,
			id, string(landsJSON)); err != nil {
			return nil, fmt.Errorf("upsert lands of tile %d: %w", id, err)
		}
		report.Upserts++
	}

	for _, id := range pending[state.EntityVillage].inserts {
		v, err := m.world.Village(ctx, id)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		row, err := toVillageRow(v)
		if err != nil {
			return nil, err
		}
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO villages
			(id, tile_id, land_chunk_index, name, housing_capacity, housing_slots_json,
			 food_stores, food_capacity, food_production_rate)
			VALUES (:id, :tile_id, :land_chunk_index, :name, :housing_capacity,
			 :housing_slots_json, :food_stores, :food_capacity, :food_production_rate)`, row); err != nil {
			return nil, fmt.Errorf("upsert village %d: %w", id, err)
		}
		report.Upserts++
	}

	for _, id := range pending[state.EntityPerson].inserts {
		p, err := m.world.Person(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue // deleted after being marked; covered by deletes
		}
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO people
			(id, tile_id, first_name, last_name, sex, born_year, born_month, born_day, residency, family_id)
			VALUES (:id, :tile_id, :first_name, :last_name, :sex,
			 :born_year, :born_month, :born_day, :residency, :family_id)`,
			toPersonRow(p)); err != nil {
			return nil, fmt.Errorf("upsert person %d: %w", id, err)
		}
		report.Upserts++
	}

	for _, id := range pending[state.EntityFamily].inserts {
		f, err := m.world.Family(ctx, id)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		row, err := toFamilyRow(f)
		if err != nil {
			return nil, err
		}
		if _, err := tx.NamedExec(`INSERT OR REPLACE INTO family
			(id, husband_id, wife_id, tile_id, pregnancy,
			 delivery_year, delivery_month, delivery_day, children_json)
			VALUES (:id, :husband_id, :wife_id, :tile_id, :pregnancy,
			 :delivery_year, :delivery_month, :delivery_day, :children_json)`, row); err != nil {
			return nil, fmt.Errorf("upsert family %d: %w", id, err)
		}
		report.Upserts++
	}

	tables := map[string]string{
		state.EntityPerson:  "people",
		state.EntityFamily:  "family",
		state.EntityVillage: "villages",
		state.EntityTile:    "tiles",
	}
	for kind, table := range tables {
		for _, id := range pending[kind].deletes {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE id = ?", id); err != nil {
				return nil, fmt.Errorf("delete %s %d: %w", kind, id, err)
			}
			report.Deletes++
		}
	}

	date, err := json.Marshal(m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("encode calendar date: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO world_meta (key, value) VALUES ('calendar_date', ?)`,
		string(date)); err != nil {
		return nil, fmt.Errorf("save calendar date: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	// Commit succeeded; now it is safe to retire the captured markers.
	for _, kind := range state.EntityKinds() {
		p := pending[kind]
		if err := m.world.ClearPending(ctx, kind, p.inserts, p.deletes); err != nil {
			return nil, err
		}
	}

	report.Elapsed = time.Since(start)
	slog.Info("world saved",
		"upserts", humanize.Comma(int64(report.Upserts)),
		"deletes", humanize.Comma(int64(report.Deletes)),
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// Load replaces the entire hot store with the durable state: the scheduler
// is paused for the duration, derived indexes are rebuilt from records,
// the calendar date is restored, and the scheduler resumes if it was
// running before.
func (m *Manager) Load(ctx context.Context) (*LoadReport, error) {
	rawDate, ok, err := m.db.Meta("calendar_date")
	if err != nil {
		return nil, fmt.Errorf("read calendar date: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no saved world state")
	}
	var date calendar.Date
	if err := json.Unmarshal([]byte(rawDate), &date); err != nil {
		return nil, fmt.Errorf("decode calendar date: %w", err)
	}

	wasRunning := m.clock.Running()
	speed := m.clock.Speed()
	if wasRunning {
		m.clock.Stop()
	}

	snap, err := m.readSnapshot()
	if err != nil {
		return nil, err
	}

	if err := m.world.Hot().FlushAll(ctx); err != nil {
		return nil, fmt.Errorf("flush hot store: %w", err)
	}
	if err := m.world.Restore(ctx, snap, m.rule, date); err != nil {
		return nil, err
	}
	if err := m.restoreIDFloors(ctx, snap); err != nil {
		return nil, err
	}
	if err := m.clock.SetDate(date); err != nil {
		return nil, fmt.Errorf("restore calendar date: %w", err)
	}
	if wasRunning {
		m.clock.Start(speed)
	}

	report := LoadReport{
		People:   len(snap.People),
		Families: len(snap.Families),
		Villages: len(snap.Villages),
		Tiles:    len(snap.Tiles),
		Date:     date,
	}
	slog.Info("world loaded",
		"people", humanize.Comma(int64(report.People)),
		"families", humanize.Comma(int64(report.Families)),
		"villages", humanize.Comma(int64(report.Villages)),
		"tiles", humanize.Comma(int64(report.Tiles)),
		"date", date,
	)
	if m.OnLoaded != nil {
		m.OnLoaded(report)
	}
	return &report, nil
}

func (m *Manager) readSnapshot() (state.Snapshot, error) {
	var snap state.Snapshot

	var people []personRow
	if err := m.db.conn.Select(&people, "SELECT * FROM people"); err != nil {
		return snap, fmt.Errorf("read people: %w", err)
	}
	for _, r := range people {
		snap.People = append(snap.People, r.record())
	}

	var families []familyRow
	if err := m.db.conn.Select(&families, "SELECT * FROM family"); err != nil {
		return snap, fmt.Errorf("read families: %w", err)
	}
	for _, r := range families {
		f, err := r.record()
		if err != nil {
			return snap, err
		}
		snap.Families = append(snap.Families, f)
	}

	var villages []villageRow
	if err := m.db.conn.Select(&villages, "SELECT * FROM villages"); err != nil {
		return snap, fmt.Errorf("read villages: %w", err)
	}
	for _, r := range villages {
		v, err := r.record()
		if err != nil {
			return snap, err
		}
		snap.Villages = append(snap.Villages, v)
	}

	var tiles []tileRow
	if err := m.db.conn.Select(&tiles, "SELECT * FROM tiles"); err != nil {
		return snap, fmt.Errorf("read tiles: %w", err)
	}
	for _, r := range tiles {
		snap.Tiles = append(snap.Tiles, r.record())
	}

	type landsRow struct {
		TileID    uint64 `db:"tile_id"`
		LandsJSON string `db:"lands_json"`
	}
	var lands []landsRow
	if err := m.db.conn.Select(&lands, "SELECT * FROM tiles_lands"); err != nil {
		return snap, fmt.Errorf("read tile lands: %w", err)
	}
	snap.Lands = make(map[uint64][]state.LandChunk, len(lands))
	for _, r := range lands {
		var chunks []state.LandChunk
		if err := json.Unmarshal([]byte(r.LandsJSON), &chunks); err != nil {
			return snap, fmt.Errorf("decode lands of tile %d: %w", r.TileID, err)
		}
		snap.Lands[r.TileID] = chunks
	}

	return snap, nil
}

// restoreIDFloors raises the id counters above every loaded id so new
// entities never collide with restored ones.
func (m *Manager) restoreIDFloors(ctx context.Context, snap state.Snapshot) error {
	maxPerson, maxFamily, maxVillage, maxTile := uint64(0), uint64(0), uint64(0), uint64(0)
	for _, p := range snap.People {
		if p.ID > maxPerson {
			maxPerson = p.ID
		}
	}
	for _, f := range snap.Families {
		if f.ID > maxFamily {
			maxFamily = f.ID
		}
	}
	for _, v := range snap.Villages {
		if v.ID > maxVillage {
			maxVillage = v.ID
		}
	}
	for _, t := range snap.Tiles {
		if t.ID > maxTile {
			maxTile = t.ID
		}
	}
	floors := map[string]uint64{
		state.EntityPerson:  maxPerson,
		state.EntityFamily:  maxFamily,
		state.EntityVillage: maxVillage,
		state.EntityTile:    maxTile,
	}
	for kind, floor := range floors {
		if err := m.alloc.SetFloor(ctx, kind, floor); err != nil {
			return err
		}
	}
	return nil
}
