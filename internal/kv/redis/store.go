// Package redis implements kv.Store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"wooswap-indexer/internal/kv"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store wraps a go-redis client.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Compile-time interface check.
var _ kv.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]kv.ScoredMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %s: %w", key, err)
	}

	out := make([]kv.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, kv.ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

// ZMembersWithScore uses ZRANGEBYSCORE with equal bounds; Redis returns
// equal-score members in ascending lexicographic order.
func (s *Store) ZMembersWithScore(ctx context.Context, key string, score float64) ([]string, error) {
	bound := strconv.FormatFloat(score, 'g', -1, 64)
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: bound,
		Max: bound,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore %s: %w", key, err)
	}
	return members, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, kv.ErrNil
		}
		return 0, fmt.Errorf("redis zscore %s: %w", key, err)
	}
	return score, nil
}

// Update runs fn under WATCH on the given keys and commits the queued
// writes in a MULTI/EXEC block.
func (s *Store) Update(ctx context.Context, watch []string, fn func(kv.Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &redisTx{ctx: ctx, rtx: rtx}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.ops) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.ops {
				op(pipe)
			}
			return nil
		})
		return err
	}, watch...)

	if errors.Is(err, redis.TxFailedErr) {
		return kv.ErrTxConflict
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// redisTx reads through the watched connection and queues writes.
type redisTx struct {
	ctx context.Context
	rtx *redis.Tx
	ops []func(redis.Pipeliner)
}

func (t *redisTx) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := t.rtx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (t *redisTx) Exists(ctx context.Context, key string) (bool, error) {
	n, err := t.rtx.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (t *redisTx) Set(key string, value []byte) {
	t.ops = append(t.ops, func(p redis.Pipeliner) {
		p.Set(t.ctx, key, value, 0)
	})
}

func (t *redisTx) ZAdd(key string, score float64, member string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) {
		p.ZAdd(t.ctx, key, redis.Z{Score: score, Member: member})
	})
}

func (t *redisTx) ZIncrBy(key string, delta float64, member string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) {
		p.ZIncrBy(t.ctx, key, delta, member)
	})
}
