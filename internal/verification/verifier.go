// Package verification checks the aggregate store against the event
// archive: every user's stats are rebuilt from archived events and
// compared field by field.
package verification

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/kv/memory"
	"wooswap-indexer/internal/storage"
)

// FieldDivergence represents a mismatch between stored and rebuilt values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // rebuilt value
}

// VerificationResult contains the result of verifying a single user.
type VerificationResult struct {
	Address     string
	Match       bool
	Divergences []FieldDivergence
	Events      int // archived events replayed
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalUsers     int
	MatchedUsers   int
	DivergentUsers int
	Results        []VerificationResult // divergent users only
}

// CompareUserStats compares two stats records and returns divergences.
// Amounts are compared exactly.
func CompareUserStats(stored, rebuilt *domain.UserStats) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if !stored.TotalVolume.Equal(rebuilt.TotalVolume) {
		add("TotalVolume", stored.TotalVolume.String(), rebuilt.TotalVolume.String())
	}
	if stored.SwapCount != rebuilt.SwapCount {
		add("SwapCount", stored.SwapCount, rebuilt.SwapCount)
	}
	if stored.CurrentAffection != rebuilt.CurrentAffection {
		add("CurrentAffection", stored.CurrentAffection, rebuilt.CurrentAffection)
	}
	if !stored.TotalRebates.Equal(rebuilt.TotalRebates) {
		add("TotalRebates", stored.TotalRebates.String(), rebuilt.TotalRebates.String())
	}
	if stored.LastSwapTime != rebuilt.LastSwapTime {
		add("LastSwapTime", stored.LastSwapTime, rebuilt.LastSwapTime)
	}
	if stored.BreakupCount != rebuilt.BreakupCount {
		add("BreakupCount", stored.BreakupCount, rebuilt.BreakupCount)
	}
	return divergences
}

// StatsVerifier rebuilds stats from an archive and compares them with the
// aggregate store.
type StatsVerifier struct {
	store   *aggregate.Store
	archive storage.EventArchive
	logger  *logrus.Entry
}

// NewStatsVerifier creates a verifier.
func NewStatsVerifier(store *aggregate.Store, archive storage.EventArchive, logger *logrus.Entry) *StatsVerifier {
	if logger == nil {
		logger = logrus.WithField("component", "verification")
	}
	return &StatsVerifier{store: store, archive: archive, logger: logger}
}

// VerifyUser rebuilds one user's stats from the archive.
func (v *StatsVerifier) VerifyUser(ctx context.Context, address string) (*VerificationResult, error) {
	stored, err := v.store.GetStats(ctx, address)
	if err != nil {
		return nil, err
	}

	events, err := v.archive.GetByUser(ctx, address, 0)
	if err != nil {
		return nil, fmt.Errorf("load archived events %s: %w", address, err)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	scratch := aggregate.NewStore(memory.NewStore())
	d := handler.New(handler.Options{Store: scratch, Logger: v.logger})
	for _, e := range events {
		if _, err := d.Handle(ctx, e); err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", address, err)
		}
	}

	rebuilt, err := scratch.GetStats(ctx, address)
	if err != nil {
		return nil, err
	}

	divergences := CompareUserStats(stored, rebuilt)
	return &VerificationResult{
		Address:     address,
		Match:       len(divergences) == 0,
		Divergences: divergences,
		Events:      len(events),
	}, nil
}

// VerifyAll verifies every user on the volume leaderboard.
func (v *StatsVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	users, err := v.store.Ranked(ctx, aggregate.KeyVolumeLeaderboard, 0, -1)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{TotalUsers: len(users)}
	for _, u := range users {
		result, err := v.VerifyUser(ctx, u.Member)
		if err != nil {
			return nil, err
		}
		if result.Match {
			report.MatchedUsers++
			continue
		}
		report.DivergentUsers++
		report.Results = append(report.Results, *result)
		v.logger.WithFields(logrus.Fields{
			"user":        u.Member,
			"divergences": len(result.Divergences),
		}).Warn("Stats diverge from archive")
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Address < report.Results[j].Address
	})
	return report, nil
}
