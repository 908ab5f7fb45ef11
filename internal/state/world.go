package state

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/gridworld/internal/store"
)

// World is the typed view of the hot store shared by every simulation
// component. It owns the simulation-wide advisory lock and the named
// per-record locks used by compound mutations.
type World struct {
	hot store.Store

	// simMu serializes tick processing against manual operations
	// (save, load, restart). Held for the full duration of either.
	simMu sync.Mutex

	// keyed guards compound mutations spanning multiple records, e.g.
	// family formation touching two person records.
	keyed keyedLock
}

// New creates a World over the given hot store.
func New(hot store.Store) *World {
	return &World{hot: hot}
}

// Hot exposes the underlying store for bulk/pipelined operations.
func (w *World) Hot() store.Store { return w.hot }

// LockSim acquires the simulation-wide advisory lock.
func (w *World) LockSim() { w.simMu.Lock() }

// UnlockSim releases the simulation-wide advisory lock.
func (w *World) UnlockSim() { w.simMu.Unlock() }

// LockPeople locks the named person records in ascending id order and
// returns the release function. Ordered acquisition prevents deadlock when
// two compound mutations overlap.
func (w *World) LockPeople(ids ...uint64) func() {
	sorted := make([]uint64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	releases := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		releases = append(releases, w.keyed.acquire("person:"+formatID(id)))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

// keyedLock hands out one mutex per name, created on demand. Names are
// never evicted; the keyspace is bounded by the live population.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLock) acquire(name string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[name]
	if !ok {
		l = &sync.Mutex{}
		k.locks[name] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// readErr downgrades store unavailability on read paths: readers get empty
// results and a logged warning instead of an error.
func readErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		slog.Warn("hot store unavailable, read returns empty")
		return nil
	}
	return err
}
