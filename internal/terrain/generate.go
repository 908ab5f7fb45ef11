// Package terrain generates tile and land chunk records for a world seed.
// The population engine consumes the output read-only.
package terrain

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/gridworld/internal/state"
)

// Config holds terrain generation parameters.
type Config struct {
	TileCount     int   // number of tiles on the sphere
	Seed          int64 // world seed
	ChunksPerTile int   // land subdivisions per land tile
	SeaLevel      float64
	MountainLvl   float64
}

// DefaultConfig returns a reasonable starting configuration.
func DefaultConfig(tileCount int, seed int64) Config {
	return Config{
		TileCount:     tileCount,
		Seed:          seed,
		ChunksPerTile: 4,
		SeaLevel:      0.45,
		MountainLvl:   0.78,
	}
}

// Result is a generated world surface.
type Result struct {
	Tiles []*state.Tile
	Lands map[uint64][]state.LandChunk
}

// Generate produces the world surface for a seed. Tiles are distributed on
// a unit sphere by Fibonacci lattice and sampled with layered simplex
// noise, so the same seed and tile count always yield the same world.
func Generate(cfg Config) *Result {
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	moistNoise := opensimplex.NewNormalized(cfg.Seed + 1)
	rng := rand.New(rand.NewSource(cfg.Seed + 3))

	res := &Result{Lands: make(map[uint64][]state.LandChunk, cfg.TileCount)}

	// Golden-angle spiral: near-uniform point distribution on the sphere.
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < cfg.TileCount; i++ {
		y := 1 - 2*float64(i)/float64(cfg.TileCount-1)
		radius := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		x := math.Cos(theta) * radius
		z := math.Sin(theta) * radius

		elev := octaveNoise(elevNoise, x, y, z, 4, 1.6, 0.5)
		moist := octaveNoise(moistNoise, x, y, z, 3, 1.2, 0.5)
		latitude := math.Abs(math.Asin(y)) * 180 / math.Pi

		tile := &state.Tile{ID: uint64(i + 1)}
		classify(tile, elev, moist, latitude, cfg)
		res.Tiles = append(res.Tiles, tile)

		if tile.IsLand {
			res.Lands[tile.ID] = makeLands(tile, cfg.ChunksPerTile, rng)
		}
	}

	return res
}

func classify(t *state.Tile, elev, moist, latitude float64, cfg Config) {
	switch {
	case elev < cfg.SeaLevel:
		t.TerrainType = "ocean"
		return
	case elev > cfg.MountainLvl:
		t.TerrainType = "mountains"
	case elev > cfg.SeaLevel+(cfg.MountainLvl-cfg.SeaLevel)*0.6:
		t.TerrainType = "hills"
	default:
		t.TerrainType = "flats"
	}
	t.IsLand = true
	t.Biome = biomeFor(t.TerrainType, latitude, moist)
	t.Fertility = fertilityFor(t.Biome, moist)
	t.IsHabitable = habitable(t.TerrainType, t.Biome)
}

func biomeFor(terrain string, latitude, moist float64) string {
	if terrain == "mountains" {
		return "alpine"
	}
	switch {
	case latitude > 60:
		return "tundra"
	case latitude > 45:
		return "plains"
	case moist > 0.5:
		return "grassland"
	case latitude > 30:
		return "plains"
	default:
		return "desert"
	}
}

func fertilityFor(biome string, moist float64) int {
	base := 50
	switch biome {
	case "grassland":
		base = 80
	case "plains":
		base = 70
	case "desert":
		base = 20
	case "tundra":
		base = 30
	case "alpine":
		base = 25
	}
	f := base + int((moist-0.5)*20)
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return f
}

func habitable(terrain, biome string) bool {
	if terrain == "ocean" || terrain == "mountains" {
		return false
	}
	switch biome {
	case "desert", "tundra", "alpine":
		return false
	}
	return true
}

// makeLands subdivides a land tile into ordered chunks. Habitable tiles
// always get a cleared first chunk: settlement needs somewhere to stand.
func makeLands(t *state.Tile, chunks int, rng *rand.Rand) []state.LandChunk {
	lands := make([]state.LandChunk, chunks)
	for i := range lands {
		lands[i] = state.LandChunk{Index: i}
		switch r := rng.Float64(); {
		case r < 0.45:
			lands[i].LandType = state.LandForest
		case r < 0.70:
			lands[i].LandType = state.LandWasteland
		default:
			lands[i].LandType = state.LandCleared
			lands[i].Cleared = true
		}
	}
	if t.IsHabitable && !anyCleared(lands) {
		lands[0].LandType = state.LandCleared
		lands[0].Cleared = true
	}
	return lands
}

func anyCleared(lands []state.LandChunk) bool {
	for _, l := range lands {
		if l.Cleared {
			return true
		}
	}
	return false
}

// octaveNoise layers 3D simplex noise for natural-looking variation.
func octaveNoise(n opensimplex.Noise, x, y, z float64, octaves int, freq, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxValue := 0.0
	for i := 0; i < octaves; i++ {
		total += n.Eval3(x*freq, y*freq, z*freq) * amplitude
		maxValue += amplitude
		amplitude *= persistence
		freq *= 2
	}
	return total / maxValue
}
