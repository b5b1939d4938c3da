// Package query is the read-only facade over the aggregate store and the
// event archives.
package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/kv"
	"wooswap-indexer/internal/normalize"
	"wooswap-indexer/internal/storage"
)

// Listing limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrNotConfigured is returned by archive-backed queries when no archive is wired.
var ErrNotConfigured = errors.New("archive not configured")

// Options contains configuration for creating a Service.
type Options struct {
	Store *aggregate.Store
	// Archive serves UserEvents. Optional.
	Archive storage.EventArchive
	// History serves VolumeHistory. Optional.
	History storage.VolumeHistoryStore
	Logger  *logrus.Entry
}

// Service answers leaderboard and stats queries. Reads never observe a
// partially applied event because every event commits atomically.
type Service struct {
	store   *aggregate.Store
	archive storage.EventArchive
	history storage.VolumeHistoryStore
	logger  *logrus.Entry
}

// New creates a query service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "query")
	}
	return &Service{
		store:   opts.Store,
		archive: opts.Archive,
		history: opts.History,
		logger:  logger,
	}
}

// ClampLimit applies the default to non-positive limits and caps the rest.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// TopUsers returns the users with the highest volume, joined with their stats.
// Index scores are float64 and can collapse distinct large volumes, so rows
// are ordered by the exact TotalVolume, then address.
func (s *Service) TopUsers(ctx context.Context, limit int) ([]*domain.UserRow, error) {
	limit = ClampLimit(limit)
	entries, err := s.store.Ranked(ctx, aggregate.KeyVolumeLeaderboard, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(entries))
	if len(entries) < limit {
		for _, e := range entries {
			members = append(members, e.Member)
		}
	} else {
		// The whole group tied with the last entry competes for the last slots.
		boundary := entries[len(entries)-1].Score
		for _, e := range entries {
			if e.Score > boundary {
				members = append(members, e.Member)
			}
		}
		tied, err := s.store.MembersWithScore(ctx, aggregate.KeyVolumeLeaderboard, boundary)
		if err != nil {
			return nil, err
		}
		if boundary == 0 {
			// A zero score is exact; users who never swapped need no stats lookup.
			sort.Strings(tied)
			if room := limit - len(members); len(tied) > room {
				tied = tied[:room]
			}
		}
		members = append(members, tied...)
	}

	rows := make([]*domain.UserRow, 0, len(members))
	for _, m := range members {
		stats, err := s.store.GetStats(ctx, m)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &domain.UserRow{UserStats: *stats})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].TotalVolume.Cmp(rows[j].TotalVolume); c != 0 {
			return c > 0
		}
		return rows[i].Address < rows[j].Address
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i, r := range rows {
		r.Rank = i + 1
	}
	return rows, nil
}

// TopByAffection returns the affection leaderboard.
func (s *Service) TopByAffection(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.leaderboard(ctx, aggregate.KeyAffectionLeaderboard, limit)
}

// HallOfShame returns the users with the most breakups.
func (s *Service) HallOfShame(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.leaderboard(ctx, aggregate.KeyBreakupLeaderboard, limit)
}

func (s *Service) leaderboard(ctx context.Context, index string, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.ranked(ctx, index, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.LeaderboardEntry{Address: e.Member, Score: decimal.NewFromFloat(e.Score)})
	}
	return out, nil
}

// UserStats returns the stats of address, defaults for an unseen address.
func (s *Service) UserStats(ctx context.Context, address string) (*domain.UserStats, error) {
	addr, err := canonicalAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.GetStats(ctx, addr)
}

// DailyVolume returns every user's volume on a UTC date (YYYY-MM-DD),
// highest first.
func (s *Service) DailyVolume(ctx context.Context, date string) ([]domain.DailyVolume, error) {
	if _, err := time.Parse(aggregate.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date %q: want YYYY-MM-DD", storage.ErrInvalidInput, date)
	}

	entries, err := s.store.Ranked(ctx, aggregate.DailyVolumeKey(date), 0, -1)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	out := make([]domain.DailyVolume, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.DailyVolume{User: e.Member, Volume: decimal.NewFromFloat(e.Score)})
	}
	return out, nil
}

// ProtocolStats returns protocol-wide totals. TotalUsers is the cardinality
// of the volume leaderboard.
func (s *Service) ProtocolStats(ctx context.Context) (*domain.ProtocolStats, error) {
	rebates, err := s.store.TotalRebates(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.store.Count(ctx, aggregate.KeyVolumeLeaderboard)
	if err != nil {
		return nil, err
	}
	breakups, err := s.store.Count(ctx, aggregate.KeyBreakupLeaderboard)
	if err != nil {
		return nil, err
	}
	return &domain.ProtocolStats{
		TotalRebates:  rebates,
		TotalUsers:    users,
		TotalBreakups: breakups,
	}, nil
}

// TokenAffection returns the latest affection record of an NFT token.
// Returns storage.ErrNotFound if the token has never been updated.
func (s *Service) TokenAffection(ctx context.Context, tokenID string) (*domain.AffectionRecord, error) {
	n, ok := new(big.Int).SetString(tokenID, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: token id %q: want a decimal integer", storage.ErrInvalidInput, tokenID)
	}
	return s.store.GetAffection(ctx, n.String())
}

// UserEvents returns archived events of address, newest first.
func (s *Service) UserEvents(ctx context.Context, address string, limit int) ([]*domain.Event, error) {
	if s.archive == nil {
		return nil, ErrNotConfigured
	}
	addr, err := canonicalAddress(address)
	if err != nil {
		return nil, err
	}
	events, err := s.archive.GetByUser(ctx, addr, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("user events %s: %w", addr, err)
	}
	return events, nil
}

// VolumeHistory returns per-day swap volume of address within [from, to].
func (s *Service) VolumeHistory(ctx context.Context, address, from, to string) ([]*domain.VolumePoint, error) {
	if s.history == nil {
		return nil, ErrNotConfigured
	}
	addr, err := canonicalAddress(address)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(aggregate.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q: want YYYY-MM-DD", storage.ErrInvalidInput, from)
	}
	end, err := time.Parse(aggregate.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q: want YYYY-MM-DD", storage.ErrInvalidInput, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range %s..%s is reversed", storage.ErrInvalidInput, from, to)
	}

	points, err := s.history.GetDailyVolume(ctx, addr, from, to)
	if err != nil {
		return nil, fmt.Errorf("volume history %s: %w", addr, err)
	}
	return points, nil
}

// ranked returns the top limit entries of index, ordered by score
// descending and then address ascending, whatever order the store uses
// for equal scores.
func (s *Service) ranked(ctx context.Context, index string, limit int) ([]kv.ScoredMember, error) {
	entries, err := s.store.Ranked(ctx, index, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	if len(entries) < limit {
		sortEntries(entries)
		return entries, nil
	}

	// Members tied with the last entry may sit just past the cut.
	boundary := entries[len(entries)-1].Score
	out := make([]kv.ScoredMember, 0, limit)
	for _, e := range entries {
		if e.Score > boundary {
			out = append(out, e)
		}
	}
	sortEntries(out)

	tied, err := s.store.MembersWithScore(ctx, index, boundary)
	if err != nil {
		return nil, err
	}
	sort.Strings(tied)
	for _, m := range tied {
		if len(out) == limit {
			break
		}
		out = append(out, kv.ScoredMember{Member: m, Score: boundary})
	}
	return out, nil
}

func sortEntries(entries []kv.ScoredMember) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Member < entries[j].Member
	})
}

func canonicalAddress(address string) (string, error) {
	addr, err := normalize.Address(address)
	if err != nil {
		return "", fmt.Errorf("%w: address: %v", storage.ErrInvalidInput, err)
	}
	return addr, nil
}
