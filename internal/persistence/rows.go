package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/state"
)

type personRow struct {
	ID        uint64        `db:"id"`
	TileID    uint64        `db:"tile_id"`
	FirstName string        `db:"first_name"`
	LastName  string        `db:"last_name"`
	Sex       uint8         `db:"sex"`
	BornYear  int           `db:"born_year"`
	BornMonth int           `db:"born_month"`
	BornDay   int           `db:"born_day"`
	Residency sql.NullInt64 `db:"residency"`
	FamilyID  sql.NullInt64 `db:"family_id"`
}

func toPersonRow(p *state.Person) personRow {
	return personRow{
		ID:        p.ID,
		TileID:    p.TileID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Sex:       uint8(p.Sex),
		BornYear:  p.Born.Year,
		BornMonth: p.Born.Month,
		BornDay:   p.Born.Day,
		Residency: nullID(p.Residency),
		FamilyID:  nullID(p.FamilyID),
	}
}

func (r personRow) record() *state.Person {
	return &state.Person{
		ID:        r.ID,
		TileID:    r.TileID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Sex:       state.Sex(r.Sex),
		Born:      calendar.Date{Year: r.BornYear, Month: r.BornMonth, Day: r.BornDay},
		Residency: idPtr(r.Residency),
		FamilyID:  idPtr(r.FamilyID),
	}
}

type familyRow struct {
	ID            uint64        `db:"id"`
	HusbandID     uint64        `db:"husband_id"`
	WifeID        uint64        `db:"wife_id"`
	TileID        uint64        `db:"tile_id"`
	Pregnancy     bool          `db:"pregnancy"`
	DeliveryYear  sql.NullInt64 `db:"delivery_year"`
	DeliveryMonth sql.NullInt64 `db:"delivery_month"`
	DeliveryDay   sql.NullInt64 `db:"delivery_day"`
	ChildrenJSON  string        `db:"children_json"`
}

func toFamilyRow(f *state.Family) (familyRow, error) {
	children, err := json.Marshal(f.ChildrenIDs)
	if err != nil {
		return familyRow{}, fmt.Errorf("encode children of family %d: %w", f.ID, err)
	}
	row := familyRow{
		ID:           f.ID,
		HusbandID:    f.HusbandID,
		WifeID:       f.WifeID,
		TileID:       f.TileID,
		Pregnancy:    f.Pregnant,
		ChildrenJSON: string(children),
	}
	if f.DeliveryDate != nil {
		row.DeliveryYear = sql.NullInt64{Int64: int64(f.DeliveryDate.Year), Valid: true}
		row.DeliveryMonth = sql.NullInt64{Int64: int64(f.DeliveryDate.Month), Valid: true}
		row.DeliveryDay = sql.NullInt64{Int64: int64(f.DeliveryDate.Day), Valid: true}
	}
	return row, nil
}

func (r familyRow) record() (*state.Family, error) {
	var children []uint64
	if r.ChildrenJSON != "" {
		if err := json.Unmarshal([]byte(r.ChildrenJSON), &children); err != nil {
			return nil, fmt.Errorf("decode children of family %d: %w", r.ID, err)
		}
	}
	f := &state.Family{
		ID:          r.ID,
		HusbandID:   r.HusbandID,
		WifeID:      r.WifeID,
		TileID:      r.TileID,
		Pregnant:    r.Pregnancy,
		ChildrenIDs: children,
	}
	if r.DeliveryYear.Valid {
		f.DeliveryDate = &calendar.Date{
			Year:  int(r.DeliveryYear.Int64),
			Month: int(r.DeliveryMonth.Int64),
			Day:   int(r.DeliveryDay.Int64),
		}
	}
	return f, nil
}

type villageRow struct {
	ID           uint64 `db:"id"`
	TileID       uint64 `db:"tile_id"`
	ChunkIndex   int    `db:"land_chunk_index"`
	Name         string `db:"name"`
	HousingCap   int    `db:"housing_capacity"`
	SlotsJSON    string `db:"housing_slots_json"`
	FoodStores   int    `db:"food_stores"`
	FoodCapacity int    `db:"food_capacity"`
	FoodRate     int    `db:"food_production_rate"`
}

func toVillageRow(v *state.Village) (villageRow, error) {
	slots, err := json.Marshal(v.HousingSlots)
	if err != nil {
		return villageRow{}, fmt.Errorf("encode slots of village %d: %w", v.ID, err)
	}
	return villageRow{
		ID:           v.ID,
		TileID:       v.TileID,
		ChunkIndex:   v.LandChunkIndex,
		Name:         v.Name,
		HousingCap:   v.HousingCap,
		SlotsJSON:    string(slots),
		FoodStores:   v.FoodStores,
		FoodCapacity: v.FoodCapacity,
		FoodRate:     v.FoodRate,
	}, nil
}

func (r villageRow) record() (*state.Village, error) {
	var slots []uint64
	if r.SlotsJSON != "" {
		if err := json.Unmarshal([]byte(r.SlotsJSON), &slots); err != nil {
			return nil, fmt.Errorf("decode slots of village %d: %w", r.ID, err)
		}
	}
	return &state.Village{
		ID:             r.ID,
		TileID:         r.TileID,
		LandChunkIndex: r.ChunkIndex,
		Name:           r.Name,
		HousingCap:     r.HousingCap,
		HousingSlots:   slots,
		FoodStores:     r.FoodStores,
		FoodCapacity:   r.FoodCapacity,
		FoodRate:       r.FoodRate,
	}, nil
}

type tileRow struct {
	ID          uint64         `db:"id"`
	TerrainType string         `db:"terrain_type"`
	IsLand      bool           `db:"is_land"`
	IsHabitable bool           `db:"is_habitable"`
	Biome       sql.NullString `db:"biome"`
	Fertility   int            `db:"fertility"`
}

func toTileRow(t *state.Tile) tileRow {
	return tileRow{
		ID:          t.ID,
		TerrainType: t.TerrainType,
		IsLand:      t.IsLand,
		IsHabitable: t.IsHabitable,
		Biome:       sql.NullString{String: t.Biome, Valid: t.Biome != ""},
		Fertility:   t.Fertility,
	}
}

func (r tileRow) record() *state.Tile {
	return &state.Tile{
		ID:          r.ID,
		TerrainType: r.TerrainType,
		IsLand:      r.IsLand,
		IsHabitable: r.IsHabitable,
		Biome:       r.Biome.String,
		Fertility:   r.Fertility,
	}
}

func nullID(id *uint64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func idPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	id := uint64(n.Int64)
	return &id
}
