// Package state is the typed record layer over the hot store: entity
// records, derived index sets, pending-change markers, and the locks
// guarding compound mutations.
package state

import (
	"strconv"

	"github.com/talgya/gridworld/internal/calendar"
)

// Sex of a person, used to key the eligibility index.
type Sex uint8

const (
	SexMale   Sex = 0
	SexFemale Sex = 1
)

func (s Sex) String() string {
	if s == SexFemale {
		return "female"
	}
	return "male"
}

// Person is the core demographic record. Residency and FamilyID are nil
// until assigned; a dead person's record is removed from the hot store and
// queued as a pending delete.
type Person struct {
	ID        uint64        `json:"id"`
	TileID    uint64        `json:"tile_id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Sex       Sex           `json:"sex"`
	Born      calendar.Date `json:"born"`
	Residency *uint64       `json:"residency,omitempty"` // village id
	FamilyID  *uint64       `json:"family_id,omitempty"`
}

// Family links two spouses. Pregnancy runs until DeliveryDate, when a child
// is born and appended to ChildrenIDs. The record outlives its spouses:
// a death widows the survivor but the family row is kept.
type Family struct {
	ID           uint64         `json:"id"`
	HusbandID    uint64         `json:"husband_id"`
	WifeID       uint64         `json:"wife_id"`
	TileID       uint64         `json:"tile_id"`
	Pregnant     bool           `json:"pregnant"`
	DeliveryDate *calendar.Date `json:"delivery_date,omitempty"`
	ChildrenIDs  []uint64       `json:"children_ids,omitempty"`
}

// Village is a housing unit on one land chunk of a tile.
type Village struct {
	ID             uint64   `json:"id"`
	TileID         uint64   `json:"tile_id"`
	LandChunkIndex int      `json:"land_chunk_index"`
	Name           string   `json:"name"`
	HousingCap     int      `json:"housing_capacity"`
	HousingSlots   []uint64 `json:"housing_slots,omitempty"` // resident person ids

	// Food parameters are owned by the food subsystem; carried here for
	// capacity checks and persistence only.
	FoodStores   int `json:"food_stores"`
	FoodCapacity int `json:"food_capacity"`
	FoodRate     int `json:"food_production_rate"`
}

// Tile is a terrain cell, written by the terrain generator and read-only
// for the population engine.
type Tile struct {
	ID          uint64 `json:"id"`
	TerrainType string `json:"terrain_type"`
	IsLand      bool   `json:"is_land"`
	IsHabitable bool   `json:"is_habitable"`
	Biome       string `json:"biome,omitempty"`
	Fertility   int    `json:"fertility"`
}

// LandChunkType classifies a tile's land chunks.
type LandChunkType string

const (
	LandForest    LandChunkType = "forest"
	LandWasteland LandChunkType = "wasteland"
	LandCleared   LandChunkType = "cleared"
)

// LandChunk is one ordered subdivision of a tile's land. A cleared chunk
// can host at most one village.
type LandChunk struct {
	Index     int           `json:"index"`
	LandType  LandChunkType `json:"land_type"`
	Cleared   bool          `json:"cleared"`
	VillageID *uint64       `json:"village_id,omitempty"`
}

// GlobalCounts are the aggregate statistics kept in the counts:global hash.
type GlobalCounts struct {
	Population uint64 `json:"population"`
	Births     uint64 `json:"births"`
	Deaths     uint64 `json:"deaths"`
	Marriages  uint64 `json:"marriages"`
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
