package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Calendar.DaysPerMonth != 12 || cfg.Calendar.MonthsPerYear != 8 {
		t.Fatalf("expected default calendar, got %+v", cfg.Calendar)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.toml")
	body := `
[calendar]
epoch_year = 5000
daily_interval = "250ms"

[seeding]
populated_tiles = 2

[store]
backend = "redis"
redis_addr = "redis:6379"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Calendar.EpochYear != 5000 {
		t.Fatalf("expected overlaid epoch year, got %d", cfg.Calendar.EpochYear)
	}
	if cfg.Calendar.DailyInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms interval, got %v", cfg.Calendar.DailyInterval)
	}
	if cfg.Seeding.PopulatedTiles != 2 {
		t.Fatalf("expected 2 populated tiles, got %d", cfg.Seeding.PopulatedTiles)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "redis:6379" {
		t.Fatalf("expected redis backend, got %+v", cfg.Store)
	}
	// Untouched sections keep their defaults.
	if cfg.Demography.GestationMonths != 9 {
		t.Fatalf("expected default gestation, got %d", cfg.Demography.GestationMonths)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero days per month", func(c *Config) { c.Calendar.DaysPerMonth = 0 }},
		{"unsorted mortality", func(c *Config) {
			c.Demography.Mortality = []MortalityBracket{{FromAge: 50, Annual: 0.1}, {FromAge: 10, Annual: 0.01}}
		}},
		{"probability above one", func(c *Config) {
			c.Demography.Mortality = []MortalityBracket{{FromAge: 0, Annual: 1.5}}
		}},
		{"inverted marriage ages", func(c *Config) {
			c.Demography.MarriageMinAge = 60
			c.Demography.MarriageMaxAge = 20
		}},
		{"inverted seeding bounds", func(c *Config) {
			c.Seeding.MinPeoplePerTile = 200
			c.Seeding.MaxPeoplePerTile = 100
		}},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}
