// Package store defines the hot store capability interface backing all
// simulation state, with an in-process implementation and a Redis adapter.
//
// The hot store is the authoritative state of a running simulation session.
// Higher layers never depend on a concrete backend; tests substitute the
// in-memory implementation.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the hot store is not connected. Readers treat
// it as "no data"; writers surface it to the caller.
var ErrUnavailable = errors.New("hot store unavailable")

// Store is the capability interface for the hot key/value store.
//
// Keys follow Redis conventions: hashes for entity records, sets for derived
// indexes and pending-change markers, plain counters for id allocation.
type Store interface {
	// Hash operations.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// Set operations.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Counter operations.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Key operations. Keys matches a glob pattern ("village:*:people").
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	FlushAll(ctx context.Context) error

	// Pipeline returns a write batch. Queued operations are applied on Exec
	// in order, bounding round trips; the batch as a whole is not atomic.
	Pipeline() Pipeline

	// Ready is closed once the store is connected and usable. Operations
	// before readiness fail with ErrUnavailable.
	Ready() <-chan struct{}

	Close() error
}

// Pipeline queues write operations for batched execution.
type Pipeline interface {
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	Del(keys ...string)
	Exec(ctx context.Context) error
}
