// Package config loads simulation settings from a TOML file over compiled defaults.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration for a simulation process.
type Config struct {
	Calendar   CalendarConfig   `toml:"calendar"`
	Demography DemographyConfig `toml:"demography"`
	Seeding    SeedingConfig    `toml:"seeding"`
	Store      StoreConfig      `toml:"store"`
	Logging    LoggingConfig    `toml:"logging"`
}

// CalendarConfig defines the simulated calendar geometry and tick speeds.
type CalendarConfig struct {
	DaysPerMonth    int           `toml:"days_per_month"`
	MonthsPerYear   int           `toml:"months_per_year"`
	EpochYear       int           `toml:"epoch_year"`
	DailyInterval   time.Duration `toml:"daily_interval"`   // real time per tick at "daily" speed
	MonthlyInterval time.Duration `toml:"monthly_interval"` // real time per tick at "monthly" speed
}

// DaysPerYear returns the number of simulated days in one year.
func (c CalendarConfig) DaysPerYear() int {
	return c.DaysPerMonth * c.MonthsPerYear
}

// MortalityBracket gives the annual death probability from a starting age.
type MortalityBracket struct {
	FromAge int     `toml:"from_age"`
	Annual  float64 `toml:"annual"`
}

// DemographyConfig holds the tunable population dynamics parameters.
type DemographyConfig struct {
	// Mortality is an age-bracketed annual death probability table. It must
	// be monotone non-decreasing above the child brackets; Validate only
	// enforces that probabilities stay in [0,1] and ages ascend.
	Mortality []MortalityBracket `toml:"mortality"`

	MarriageMinAge     int `toml:"marriage_min_age"`
	MarriageMaxAge     int `toml:"marriage_max_age"`
	MarriageMaxAgeDiff int `toml:"marriage_max_age_diff"` // widest spouse age gap

	FertileMinAge       int     `toml:"fertile_min_age"`
	FertileMaxAge       int     `toml:"fertile_max_age"`
	DailyConceptionRate float64 `toml:"daily_conception_rate"`
	GestationMonths     int     `toml:"gestation_months"`
}

// SeedingConfig controls world regeneration.
type SeedingConfig struct {
	TileCount        int `toml:"tile_count"`      // tiles generated by the terrain pass
	PopulatedTiles   int `toml:"populated_tiles"` // tiles seeded with people
	MinPeoplePerTile int `toml:"min_people_per_tile"`
	MaxPeoplePerTile int `toml:"max_people_per_tile"`
	MinSeedAge       int `toml:"min_seed_age"`
	MaxSeedAge       int `toml:"max_seed_age"`

	VillageCapacity     int `toml:"village_capacity"`
	VillageFoodCapacity int `toml:"village_food_capacity"`
	VillageFoodRate     int `toml:"village_food_rate"`

	AutosaveDays int `toml:"autosave_days"` // 0 disables periodic saves
}

// StoreConfig selects the hot store backend and the durable store path.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend   string `toml:"backend"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`

	SQLitePath string `toml:"sqlite_path"`
}

type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// Load reads a TOML config file, overlaying it on Default(). A missing path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Calendar: CalendarConfig{
			DaysPerMonth:    12,
			MonthsPerYear:   8,
			EpochYear:       4000,
			DailyInterval:   time.Second,
			MonthlyInterval: 125 * time.Millisecond,
		},
		Demography: DemographyConfig{
			Mortality: []MortalityBracket{
				{0, 0.05},
				{5, 0.005},
				{15, 0.002},
				{30, 0.003},
				{50, 0.01},
				{60, 0.025},
				{70, 0.05},
				{80, 0.12},
				{90, 0.25},
				{100, 0.5},
			},
			MarriageMinAge:      18,
			MarriageMaxAge:      57,
			MarriageMaxAgeDiff:  15,
			FertileMinAge:       18,
			FertileMaxAge:       40,
			DailyConceptionRate: 0.004,
			GestationMonths:     9,
		},
		Seeding: SeedingConfig{
			TileCount:           500,
			PopulatedTiles:      5,
			MinPeoplePerTile:    100,
			MaxPeoplePerTile:    200,
			MinSeedAge:          18,
			MaxSeedAge:          57,
			VillageCapacity:     100,
			VillageFoodCapacity: 500,
			VillageFoodRate:     10,
			AutosaveDays:        12,
		},
		Store: StoreConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			SQLitePath: "data/gridworld.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate rejects configurations that would corrupt the simulation.
func (c *Config) Validate() error {
	if c.Calendar.DaysPerMonth < 1 || c.Calendar.MonthsPerYear < 1 {
		return fmt.Errorf("calendar geometry must be positive, got %d days x %d months",
			c.Calendar.DaysPerMonth, c.Calendar.MonthsPerYear)
	}
	if !sort.SliceIsSorted(c.Demography.Mortality, func(i, j int) bool {
		return c.Demography.Mortality[i].FromAge < c.Demography.Mortality[j].FromAge
	}) {
		return fmt.Errorf("mortality brackets must be sorted by from_age")
	}
	for _, b := range c.Demography.Mortality {
		if b.Annual < 0 || b.Annual > 1 {
			return fmt.Errorf("mortality annual probability %v for age %d out of [0,1]", b.Annual, b.FromAge)
		}
	}
	if c.Demography.MarriageMinAge > c.Demography.MarriageMaxAge {
		return fmt.Errorf("marriage age bounds inverted: %d > %d",
			c.Demography.MarriageMinAge, c.Demography.MarriageMaxAge)
	}
	if c.Demography.MarriageMaxAgeDiff < 0 {
		return fmt.Errorf("marriage max age difference must not be negative, got %d",
			c.Demography.MarriageMaxAgeDiff)
	}
	if c.Seeding.MinPeoplePerTile > c.Seeding.MaxPeoplePerTile {
		return fmt.Errorf("seeding population bounds inverted: %d > %d",
			c.Seeding.MinPeoplePerTile, c.Seeding.MaxPeoplePerTile)
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
