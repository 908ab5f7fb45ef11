package store

import (
	"context"
	"sort"
	"testing"
)

func TestMemoryHashOps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.HGet(ctx, "person", "1"); err != nil || ok {
		t.Fatalf("missing field should be (_, false, nil), got ok=%v err=%v", ok, err)
	}

	if err := m.HSet(ctx, "person", "1", "alice"); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := m.HSet(ctx, "person", "2", "bob"); err != nil {
		t.Fatalf("hset: %v", err)
	}

	v, ok, err := m.HGet(ctx, "person", "1")
	if err != nil || !ok || v != "alice" {
		t.Fatalf("expected alice, got (%q, %v, %v)", v, ok, err)
	}

	all, err := m.HGetAll(ctx, "person")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 fields, got %d (%v)", len(all), err)
	}

	n, err := m.HLen(ctx, "person")
	if err != nil || n != 2 {
		t.Fatalf("expected hlen 2, got %d (%v)", n, err)
	}

	if err := m.HDel(ctx, "person", "1"); err != nil {
		t.Fatalf("hdel: %v", err)
	}
	if _, ok, _ := m.HGet(ctx, "person", "1"); ok {
		t.Fatal("deleted field still present")
	}
}

func TestMemoryHIncrBy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.HIncrBy(ctx, "counts", "population", 5)
	if err != nil || n != 5 {
		t.Fatalf("expected 5, got %d (%v)", n, err)
	}
	n, err = m.HIncrBy(ctx, "counts", "population", -2)
	if err != nil || n != 3 {
		t.Fatalf("expected 3, got %d (%v)", n, err)
	}
}

func TestMemorySetOps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.SAdd(ctx, "eligible", "1", "2", "2", "3"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	n, err := m.SCard(ctx, "eligible")
	if err != nil || n != 3 {
		t.Fatalf("expected card 3, got %d (%v)", n, err)
	}

	ok, err := m.SIsMember(ctx, "eligible", "2")
	if err != nil || !ok {
		t.Fatalf("expected 2 to be a member (%v)", err)
	}

	if err := m.SRem(ctx, "eligible", "2"); err != nil {
		t.Fatalf("srem: %v", err)
	}
	members, err := m.SMembers(ctx, "eligible")
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "1" || members[1] != "3" {
		t.Fatalf("expected [1 3], got %v", members)
	}
}

func TestMemoryCountersAndKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.IncrBy(ctx, "next:person:id", 64)
	if err != nil || n != 64 {
		t.Fatalf("expected 64, got %d (%v)", n, err)
	}
	if _, err := m.IncrBy(ctx, "next:family:id", 64); err != nil {
		t.Fatalf("incrby: %v", err)
	}
	if err := m.SAdd(ctx, "village:4:0:people", "9"); err != nil {
		t.Fatalf("sadd: %v", err)
	}

	keys, err := m.Keys(ctx, "next:*:id")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "next:family:id" || keys[1] != "next:person:id" {
		t.Fatalf("expected counter keys, got %v", keys)
	}

	keys, err = m.Keys(ctx, "village:*:*:people")
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected one membership key, got %v (%v)", keys, err)
	}

	if err := m.Del(ctx, "next:person:id", "next:family:id"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if keys, _ := m.Keys(ctx, "next:*:id"); len(keys) != 0 {
		t.Fatalf("expected counters gone, got %v", keys)
	}
}

func TestMemoryFlushAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.HSet(ctx, "person", "1", "x")
	m.SAdd(ctx, "eligible", "1")
	m.IncrBy(ctx, "next:person:id", 1)

	if err := m.FlushAll(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if keys, _ := m.Keys(ctx, "*"); len(keys) != 0 {
		t.Fatalf("expected empty store, got %v", keys)
	}
}

func TestMemoryPipelineAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	pipe := m.Pipeline()
	pipe.HSet("person", "1", "alice")
	pipe.HSet("person", "1", "alice-v2")
	pipe.SAdd("pending:person:inserts", "1")
	pipe.SRem("pending:person:inserts", "1")
	pipe.Del("gone")

	// Nothing lands before Exec.
	if _, ok, _ := m.HGet(ctx, "person", "1"); ok {
		t.Fatal("pipeline applied before Exec")
	}

	if err := pipe.Exec(ctx); err != nil {
		t.Fatalf("exec: %v", err)
	}

	v, ok, _ := m.HGet(ctx, "person", "1")
	if !ok || v != "alice-v2" {
		t.Fatalf("expected last write to win, got (%q, %v)", v, ok)
	}
	if n, _ := m.SCard(ctx, "pending:person:inserts"); n != 0 {
		t.Fatalf("expected SRem after SAdd to leave empty set, got %d", n)
	}
}

func TestMemoryReadyIsImmediate(t *testing.T) {
	m := NewMemory()
	select {
	case <-m.Ready():
	default:
		t.Fatal("in-process store must be ready at construction")
	}
}
