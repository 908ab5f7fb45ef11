// Command gridworld runs the population simulation engine.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/persistence"
	"github.com/talgya/gridworld/internal/sim"
	"github.com/talgya/gridworld/internal/state"
	"github.com/talgya/gridworld/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		seed       = flag.Int64("seed", 42, "world seed")
		restart    = flag.Bool("restart", false, "discard any saved world and reseed")
		speed      = flag.String("speed", "daily", "clock speed: daily or monthly")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("gridworld population engine",
		"seed", *seed,
		"backend", cfg.Store.Backend,
		"calendar", cfg.Calendar.DaysPerMonth*cfg.Calendar.MonthsPerYear,
	)

	hot := openHotStore(cfg.Store)
	defer hot.Close()

	select {
	case <-hot.Ready():
	case <-time.After(30 * time.Second):
		slog.Error("hot store not ready", "backend", cfg.Store.Backend)
		os.Exit(1)
	}

	os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0755)
	db, err := persistence.Open(cfg.Store.SQLitePath)
	if err != nil {
		slog.Error("failed to open database", "error", err, "path", cfg.Store.SQLitePath)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Store.SQLitePath)

	world := state.New(hot)
	simulation, err := sim.New(world, db, *cfg, *seed)
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if !*restart && simulation.HasSavedWorld() {
		slog.Info("found saved world state, loading...")
		if _, err := simulation.Load(ctx); err != nil {
			slog.Error("failed to load world", "error", err)
			os.Exit(1)
		}
	} else {
		if _, err := simulation.Restart(ctx, *seed); err != nil {
			slog.Error("failed to seed world", "error", err)
			os.Exit(1)
		}
	}

	simulation.Start(clockSpeed(*speed))
	slog.Info("simulation running", "speed", *speed)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	simulation.Stop()
	if _, err := simulation.Save(ctx); err != nil {
		slog.Error("final save failed", "error", err)
		os.Exit(1)
	}
	slog.Info("goodbye")
}

func openHotStore(cfg config.StoreConfig) store.Store {
	if cfg.Backend == "redis" {
		return store.NewRedis(cfg.RedisAddr, cfg.RedisDB)
	}
	return store.NewMemory()
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func clockSpeed(s string) calendar.Speed {
	if s == "monthly" {
		return calendar.SpeedMonthly
	}
	return calendar.SpeedDaily
}
