// Package kv defines the key-value store contract the aggregate layer is built on:
// opaque records plus sorted sets, with atomic multi-key updates.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNil is returned when a key or sorted-set member does not exist.
	ErrNil = errors.New("kv: nil")

	// ErrTxConflict is returned by Update when a watched key changed
	// before the queued writes could be applied. The caller may retry.
	ErrTxConflict = errors.New("kv: transaction conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv: store closed")
)

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Reader reads opaque records.
type Reader interface {
	// Get returns the value at key or ErrNil.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Writer queues mutations. Queued writes are applied atomically when
// the enclosing Update returns nil, and discarded otherwise.
type Writer interface {
	Set(key string, value []byte)
	// ZAdd inserts member or replaces its score.
	ZAdd(key string, score float64, member string)
	// ZIncrBy adds delta to the member's score, creating it at delta.
	ZIncrBy(key string, delta float64, member string)
}

// Tx is the view passed to an Update callback.
type Tx interface {
	Reader
	Writer
}

// Store is a key-value store with sorted sets.
type Store interface {
	Reader

	// ZRevRangeWithScores returns members ranked start..stop (inclusive,
	// negative indexes count from the end) by descending score.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	// ZMembersWithScore returns every member whose score equals score.
	ZMembersWithScore(ctx context.Context, key string, score float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	// ZScore returns the member's score or ErrNil.
	ZScore(ctx context.Context, key, member string) (float64, error)

	// Update calls fn and applies its queued writes as one atomic unit.
	// Reads of watched keys inside fn are guaranteed unchanged at commit,
	// otherwise ErrTxConflict is returned and nothing is written.
	Update(ctx context.Context, watch []string, fn func(Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}
