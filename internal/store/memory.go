package store

import (
	"context"
	"path"
	"strconv"
	"sync"
)

// Memory is the in-process hot store used for single-node simulations and
// tests. All operations are guarded by a single mutex; the simulation is
// cooperative so contention is negligible.
type Memory struct {
	mu       sync.RWMutex
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	counters map[string]int64
	ready    chan struct{}
}

// NewMemory creates an empty in-memory store. It is ready immediately.
func NewMemory() *Memory {
	m := &Memory{
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]int64),
		ready:    make(chan struct{}),
	}
	close(m.ready)
	return m
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.hashes[key][field]
	return v, ok, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hset(key, field, value)
	return nil
}

func (m *Memory) hset(key, field, value string) {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hdel(key, fields...)
	return nil
}

func (m *Memory) hdel(key string, fields ...string) {
	h := m.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
}

func (m *Memory) HLen(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.hashes[key])), nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := strconv.ParseInt(m.hashes[key][field], 10, 64)
	cur += delta
	m.hset(key, field, strconv.FormatInt(cur, 10))
	return cur, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sadd(key, members...)
	return nil
}

func (m *Memory) sadd(key string, members ...string) {
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.srem(key, members...)
	return nil
}

func (m *Memory) srem(key string, members ...string) {
	s := m.sets[key]
	for _, mem := range members {
		delete(s, mem)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	return out, nil
}

func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sets[key])), nil
}

func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *Memory) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += delta
	return m.counters[key], nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.del(keys...)
	return nil
}

func (m *Memory) del(keys ...string) {
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.sets, k)
		delete(m.counters, k)
	}
}

// Keys matches existing keys against a glob pattern.
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	match := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range m.hashes {
		match(k)
	}
	for k := range m.sets {
		match(k)
	}
	for k := range m.counters {
		match(k)
	}
	return out, nil
}

func (m *Memory) FlushAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes = make(map[string]map[string]string)
	m.sets = make(map[string]map[string]struct{})
	m.counters = make(map[string]int64)
	return nil
}

func (m *Memory) Ready() <-chan struct{} { return m.ready }

func (m *Memory) Close() error { return nil }

// memOp is one queued pipeline write.
type memOp func(*Memory)

type memPipeline struct {
	store *Memory
	ops   []memOp
}

func (m *Memory) Pipeline() Pipeline {
	return &memPipeline{store: m}
}

func (p *memPipeline) HSet(key, field, value string) {
	p.ops = append(p.ops, func(m *Memory) { m.hset(key, field, value) })
}

func (p *memPipeline) HDel(key string, fields ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.hdel(key, fields...) })
}

func (p *memPipeline) SAdd(key string, members ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.sadd(key, members...) })
}

func (p *memPipeline) SRem(key string, members ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.srem(key, members...) })
}

func (p *memPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(m *Memory) { m.del(keys...) })
}

func (p *memPipeline) Exec(_ context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	for _, op := range p.ops {
		op(p.store)
	}
	p.ops = nil
	return nil
}
