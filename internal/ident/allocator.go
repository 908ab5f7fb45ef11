// Package ident issues monotonic entity ids backed by hot store counters.
package ident

import (
	"context"
	"fmt"
	"sync"

	"github.com/talgya/gridworld/internal/store"
)

// batchSize is how many ids one counter round trip reserves.
const batchSize = 64

// Allocator hands out monotonic ids per entity type. A block of ids is
// reserved from the `next:<entity>:id` counter in one round trip and served
// from memory until exhausted. Ids reserved but unused when the process
// stops are simply skipped; uniqueness is what matters, not density.
type Allocator struct {
	hot store.Store

	mu     sync.Mutex
	blocks map[string]*block
}

type block struct {
	next uint64 // next id to hand out
	end  uint64 // last id in the reserved block (inclusive)
}

// New creates an allocator over the given hot store.
func New(hot store.Store) *Allocator {
	return &Allocator{hot: hot, blocks: make(map[string]*block)}
}

func counterKey(entity string) string {
	return fmt.Sprintf("next:%s:id", entity)
}

// Next returns the next id for the entity type ("person", "family", ...).
func (a *Allocator) Next(ctx context.Context, entity string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.blocks[entity]
	if b == nil || b.next > b.end {
		high, err := a.hot.IncrBy(ctx, counterKey(entity), batchSize)
		if err != nil {
			return 0, fmt.Errorf("reserve %s id block: %w", entity, err)
		}
		b = &block{next: uint64(high) - batchSize + 1, end: uint64(high)}
		a.blocks[entity] = b
	}

	id := b.next
	b.next++
	return id, nil
}

// SetFloor raises the counter so future ids start above floor. Used after a
// durable load so new entities never collide with loaded ones.
func (a *Allocator) SetFloor(ctx context.Context, entity string, floor uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.blocks, entity)
	cur, err := a.hot.IncrBy(ctx, counterKey(entity), 0)
	if err != nil {
		return fmt.Errorf("read %s id counter: %w", entity, err)
	}
	if uint64(cur) >= floor {
		return nil
	}
	_, err = a.hot.IncrBy(ctx, counterKey(entity), int64(floor)-cur)
	return err
}

// Reset drops the counter and cache for one entity type.
func (a *Allocator) Reset(ctx context.Context, entity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blocks, entity)
	return a.hot.Del(ctx, counterKey(entity))
}

// ResetAll drops every known counter. Called at the start of a world restart.
func (a *Allocator) ResetAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = make(map[string]*block)

	keys, err := a.hot.Keys(ctx, "next:*:id")
	if err != nil {
		return fmt.Errorf("scan id counters: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return a.hot.Del(ctx, keys...)
}
