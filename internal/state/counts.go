package state

import (
	"context"
	"fmt"
	"strconv"
)

// Aggregate statistics live in the counts:global hash. They are advisory
// (the source of truth is always the entity hashes) but cheap to read for
// status surfaces.

const (
	CountPopulation = "population"
	CountBirths     = "births"
	CountDeaths     = "deaths"
	CountMarriages  = "marriages"
)

// BumpCount adjusts one global counter by delta.
func (w *World) BumpCount(ctx context.Context, field string, delta int64) error {
	if _, err := w.hot.HIncrBy(ctx, keyCounts, field, delta); err != nil {
		return fmt.Errorf("bump count %s: %w", field, err)
	}
	return nil
}

// Counts reads the global counters.
func (w *World) Counts(ctx context.Context) (GlobalCounts, error) {
	raw, err := w.hot.HGetAll(ctx, keyCounts)
	if err := readErr(err); err != nil {
		return GlobalCounts{}, fmt.Errorf("read counts: %w", err)
	}
	get := func(field string) uint64 {
		n, _ := strconv.ParseUint(raw[field], 10, 64)
		return n
	}
	return GlobalCounts{
		Population: get(CountPopulation),
		Births:     get(CountBirths),
		Deaths:     get(CountDeaths),
		Marriages:  get(CountMarriages),
	}, nil
}

// ResetCounts zeroes the counters and sets population to the live person
// count. Called after seeding and loading.
func (w *World) ResetCounts(ctx context.Context) error {
	if err := w.hot.Del(ctx, keyCounts); err != nil {
		return fmt.Errorf("reset counts: %w", err)
	}
	n, err := w.hot.HLen(ctx, keyPerson)
	if err := readErr(err); err != nil {
		return err
	}
	return w.BumpCount(ctx, CountPopulation, n)
}
