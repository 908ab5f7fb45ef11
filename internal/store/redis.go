package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis adapts a Redis server to the Store interface. Used when the hot
// store should survive process restarts or be inspected with external
// tooling; the simulation still runs single-node.
type Redis struct {
	client *redis.Client
	ready  chan struct{}
}

// NewRedis connects to a Redis server. The returned store becomes ready once
// the first ping succeeds; until then operations fail with ErrUnavailable.
func NewRedis(addr string, db int) *Redis {
	r := &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ready:  make(chan struct{}),
	}
	go r.waitReady()
	return r
}

func (r *Redis) waitReady() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.client.Ping(ctx).Err()
		cancel()
		if err == nil {
			close(r.ready)
			slog.Info("hot store connected", "backend", "redis")
			return
		}
		slog.Warn("hot store not reachable, retrying", "error", err)
		time.Sleep(time.Second)
	}
}

func (r *Redis) available() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

func (r *Redis) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if !r.available() {
		return "", false, ErrUnavailable
	}
	v, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, r.wrap(err)
	}
	return v, true, nil
}

func (r *Redis) HSet(ctx context.Context, key, field, value string) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.HSet(ctx, key, field, value).Err())
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if !r.available() {
		return nil, ErrUnavailable
	}
	m, err := r.client.HGetAll(ctx, key).Result()
	return m, r.wrap(err)
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.HDel(ctx, key, fields...).Err())
}

func (r *Redis) HLen(ctx context.Context, key string) (int64, error) {
	if !r.available() {
		return 0, ErrUnavailable
	}
	n, err := r.client.HLen(ctx, key).Result()
	return n, r.wrap(err)
}

func (r *Redis) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if !r.available() {
		return 0, ErrUnavailable
	}
	n, err := r.client.HIncrBy(ctx, key, field, delta).Result()
	return n, r.wrap(err)
}

func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.SAdd(ctx, key, toAny(members)...).Err())
}

func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.SRem(ctx, key, toAny(members)...).Err())
}

func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	if !r.available() {
		return nil, ErrUnavailable
	}
	out, err := r.client.SMembers(ctx, key).Result()
	return out, r.wrap(err)
}

func (r *Redis) SCard(ctx context.Context, key string) (int64, error) {
	if !r.available() {
		return 0, ErrUnavailable
	}
	n, err := r.client.SCard(ctx, key).Result()
	return n, r.wrap(err)
}

func (r *Redis) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if !r.available() {
		return false, ErrUnavailable
	}
	ok, err := r.client.SIsMember(ctx, key, member).Result()
	return ok, r.wrap(err)
}

func (r *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if !r.available() {
		return 0, ErrUnavailable
	}
	n, err := r.client.IncrBy(ctx, key, delta).Result()
	return n, r.wrap(err)
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.Del(ctx, keys...).Err())
}

// Keys scans the keyspace for a glob pattern. SCAN is used instead of KEYS
// to avoid blocking the server on large keyspaces.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	if !r.available() {
		return nil, ErrUnavailable
	}
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 512).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, r.wrap(iter.Err())
}

func (r *Redis) FlushAll(ctx context.Context) error {
	if !r.available() {
		return ErrUnavailable
	}
	return r.wrap(r.client.FlushDB(ctx).Err())
}

func (r *Redis) Ready() <-chan struct{} { return r.ready }

func (r *Redis) Close() error { return r.client.Close() }

type redisPipeline struct {
	store *Redis
	pipe  redis.Pipeliner
}

func (r *Redis) Pipeline() Pipeline {
	return &redisPipeline{store: r, pipe: r.client.Pipeline()}
}

func (p *redisPipeline) HSet(key, field, value string) {
	p.pipe.HSet(context.Background(), key, field, value)
}

func (p *redisPipeline) HDel(key string, fields ...string) {
	p.pipe.HDel(context.Background(), key, fields...)
}

func (p *redisPipeline) SAdd(key string, members ...string) {
	p.pipe.SAdd(context.Background(), key, toAny(members)...)
}

func (p *redisPipeline) SRem(key string, members ...string) {
	p.pipe.SRem(context.Background(), key, toAny(members)...)
}

func (p *redisPipeline) Del(keys ...string) {
	p.pipe.Del(context.Background(), keys...)
}

func (p *redisPipeline) Exec(ctx context.Context) error {
	if !p.store.available() {
		return ErrUnavailable
	}
	_, err := p.pipe.Exec(ctx)
	return p.store.wrap(err)
}

func toAny(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
