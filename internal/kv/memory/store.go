// Package memory provides an in-process kv.Store for tests and single-node runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"wooswap-indexer/internal/kv"
)

// Store implements kv.Store in memory.
// Update holds the write lock for the whole callback, so transactions never conflict.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	zsets  map[string]map[string]float64
	closed bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		values: make(map[string][]byte),
		zsets:  make(map[string]map[string]float64),
	}
}

// Compile-time interface check.
var _ kv.Store = (*Store)(nil)

// Get returns a copy of the value at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	return s.get(key)
}

// Exists reports whether key holds a value.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, kv.ErrClosed
	}
	_, ok := s.values[key]
	return ok, nil
}

// ZRevRangeWithScores returns members by descending score. Equal scores
// are ordered by descending member, matching Redis.
func (s *Store) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]kv.ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	zset := s.zsets[key]
	all := make([]kv.ScoredMember, 0, len(zset))
	for member, score := range zset {
		all = append(all, kv.ScoredMember{Member: member, Score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Member > all[j].Member
	})

	from, to, ok := clampRange(start, stop, int64(len(all)))
	if !ok {
		return []kv.ScoredMember{}, nil
	}
	return all[from : to+1], nil
}

// ZMembersWithScore returns members whose score equals score, in ascending order.
func (s *Store) ZMembersWithScore(_ context.Context, key string, score float64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	var members []string
	for member, sc := range s.zsets[key] {
		if sc == score {
			members = append(members, member)
		}
	}
	sort.Strings(members)
	return members, nil
}

// ZCard returns the number of members in the sorted set.
func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, kv.ErrClosed
	}
	return int64(len(s.zsets[key])), nil
}

// ZScore returns the score of member.
func (s *Store) ZScore(_ context.Context, key, member string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, kv.ErrClosed
	}
	score, ok := s.zsets[key][member]
	if !ok {
		return 0, kv.ErrNil
	}
	return score, nil
}

// Update runs fn under the write lock and applies queued writes if fn succeeds.
func (s *Store) Update(ctx context.Context, _ []string, fn func(kv.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, op := range tx.ops {
		op()
	}
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kv.ErrClosed
	}
	return nil
}

// Close marks the store closed. Data is kept for inspection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// get assumes s.mu is held.
func (s *Store) get(key string) ([]byte, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) zset(key string) map[string]float64 {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	return z
}

// memTx reads through to the locked store and buffers writes.
type memTx struct {
	store *Store
	ops   []func()
}

func (t *memTx) Get(_ context.Context, key string) ([]byte, error) {
	return t.store.get(key)
}

func (t *memTx) Exists(_ context.Context, key string) (bool, error) {
	_, ok := t.store.values[key]
	return ok, nil
}

func (t *memTx) Set(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	t.ops = append(t.ops, func() {
		t.store.values[key] = v
	})
}

func (t *memTx) ZAdd(key string, score float64, member string) {
	t.ops = append(t.ops, func() {
		t.store.zset(key)[member] = score
	})
}

func (t *memTx) ZIncrBy(key string, delta float64, member string) {
	t.ops = append(t.ops, func() {
		t.store.zset(key)[member] += delta
	})
}

// clampRange converts Redis-style inclusive indexes into slice bounds.
func clampRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
