// Package aggregate owns UserStats and the derived sorted indexes.
// All writes go through Apply so a record, its stats and every index it
// touches commit together.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/kv"
	"wooswap-indexer/internal/storage"
)

// Store is the aggregate store over a kv.Store.
type Store struct {
	kv kv.Store
}

// NewStore creates a Store on top of an opened kv.Store.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

// GetStats returns the stats of address, or the default record if none exists.
func (s *Store) GetStats(ctx context.Context, address string) (*domain.UserStats, error) {
	return getStats(ctx, s.kv, address)
}

// PutStats persists stats and re-inserts both leaderboards with full values.
func (s *Store) PutStats(ctx context.Context, stats *domain.UserStats) error {
	return s.Apply(ctx, []string{UserKey(stats.Address)}, func(tx *Tx) error {
		return tx.PutStats(stats)
	})
}

// Apply runs fn in a transaction watching the given keys.
func (s *Store) Apply(ctx context.Context, watch []string, fn func(*Tx) error) error {
	return s.kv.Update(ctx, watch, func(t kv.Tx) error {
		return fn(&Tx{ctx: ctx, tx: t})
	})
}

// RecordExists reports whether an immutable record exists at key.
func (s *Store) RecordExists(ctx context.Context, key string) (bool, error) {
	ok, err := s.kv.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check record %s: %w", key, err)
	}
	return ok, nil
}

// GetRecord decodes the immutable record at key into v.
// Returns storage.ErrNotFound if absent.
func (s *Store) GetRecord(ctx context.Context, key string, v any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get record %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record %s: %w", key, err)
	}
	return nil
}

// GetAffection returns the latest affection record for a token.
func (s *Store) GetAffection(ctx context.Context, tokenID string) (*domain.AffectionRecord, error) {
	var rec domain.AffectionRecord
	if err := s.GetRecord(ctx, AffectionKey(tokenID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ranked returns index entries ranked start..stop by descending score.
func (s *Store) Ranked(ctx context.Context, index string, start, stop int64) ([]kv.ScoredMember, error) {
	entries, err := s.kv.ZRevRangeWithScores(ctx, index, start, stop)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", index, err)
	}
	return entries, nil
}

// MembersWithScore returns index members holding exactly score.
func (s *Store) MembersWithScore(ctx context.Context, index string, score float64) ([]string, error) {
	members, err := s.kv.ZMembersWithScore(ctx, index, score)
	if err != nil {
		return nil, fmt.Errorf("members of %s at %v: %w", index, score, err)
	}
	return members, nil
}

// Count returns the cardinality of an index.
func (s *Store) Count(ctx context.Context, index string) (int64, error) {
	n, err := s.kv.ZCard(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return n, nil
}

// TotalRebates returns the protocol-wide rebate total, zero if none recorded.
func (s *Store) TotalRebates(ctx context.Context) (decimal.Decimal, error) {
	score, err := s.kv.ZScore(ctx, KeyTotalRebates, ProtocolMember)
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("total rebates: %w", err)
	}
	return decimal.NewFromFloat(score), nil
}

// Ping checks the backing store.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Tx is the transactional view of the aggregate store.
type Tx struct {
	ctx context.Context
	tx  kv.Tx
}

// GetStats reads stats inside the transaction.
func (t *Tx) GetStats(address string) (*domain.UserStats, error) {
	return getStats(t.ctx, t.tx, address)
}

// PutStats writes the stats record and both leaderboards.
func (t *Tx) PutStats(stats *domain.UserStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats %s: %w", stats.Address, err)
	}
	t.tx.Set(UserKey(stats.Address), data)
	t.tx.ZAdd(KeyVolumeLeaderboard, stats.TotalVolume.InexactFloat64(), stats.Address)
	t.tx.ZAdd(KeyAffectionLeaderboard, float64(stats.CurrentAffection), stats.Address)
	return nil
}

// RecordExists reports whether an immutable record exists at key.
func (t *Tx) RecordExists(key string) (bool, error) {
	ok, err := t.tx.Exists(t.ctx, key)
	if err != nil {
		return false, fmt.Errorf("check record %s: %w", key, err)
	}
	return ok, nil
}

// PutRecord writes an immutable record.
func (t *Tx) PutRecord(key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	t.tx.Set(key, data)
	return nil
}

// GetAffection reads a token's affection record, storage.ErrNotFound if absent.
func (t *Tx) GetAffection(tokenID string) (*domain.AffectionRecord, error) {
	data, err := t.tx.Get(t.ctx, AffectionKey(tokenID))
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get affection %s: %w", tokenID, err)
	}
	var rec domain.AffectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode affection %s: %w", tokenID, err)
	}
	return &rec, nil
}

// PutAffection overwrites a token's affection record.
func (t *Tx) PutAffection(rec *domain.AffectionRecord) error {
	return t.PutRecord(AffectionKey(rec.TokenID), rec)
}

// IncrDailyVolume adds amount to the user's entry in the bucket for date.
func (t *Tx) IncrDailyVolume(date, user string, amount decimal.Decimal) {
	t.tx.ZIncrBy(DailyVolumeKey(date), amount.InexactFloat64(), user)
}

// IncrBreakups adds one to the user's hall of shame entry.
func (t *Tx) IncrBreakups(user string) {
	t.tx.ZIncrBy(KeyBreakupLeaderboard, 1, user)
}

// IncrTotalRebates adds amount to the protocol rebate total.
func (t *Tx) IncrTotalRebates(amount decimal.Decimal) {
	t.tx.ZIncrBy(KeyTotalRebates, amount.InexactFloat64(), ProtocolMember)
}

func getStats(ctx context.Context, r kv.Reader, address string) (*domain.UserStats, error) {
	data, err := r.Get(ctx, UserKey(address))
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return domain.NewUserStats(address), nil
		}
		return nil, fmt.Errorf("get stats %s: %w", address, err)
	}

	stats := domain.NewUserStats(address)
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", address, err)
	}
	if stats.Address == "" {
		stats.Address = address
	}
	return stats, nil
}
