package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/storage"
)

// EventArchive is an in-memory implementation of storage.EventArchive
// and storage.VolumeHistoryStore.
type EventArchive struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by tx_hash|log_index
}

// NewEventArchive creates a new in-memory event archive.
func NewEventArchive() *EventArchive {
	return &EventArchive{
		data: make(map[string]*domain.Event),
	}
}

// Compile-time interface checks.
var (
	_ storage.EventArchive       = (*EventArchive)(nil)
	_ storage.VolumeHistoryStore = (*EventArchive)(nil)
)

// eventKey generates a unique key for an event.
func eventKey(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s|%d", txHash, logIndex)
}

// Insert adds a new event. Returns ErrDuplicateKey if exists.
func (a *EventArchive) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.TxHash == "" || !e.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	key := eventKey(e.TxHash, e.LogIndex)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *e
	a.data[key] = &copy
	return nil
}

// GetByUser retrieves events for user, newest first.
func (a *EventArchive) GetByUser(_ context.Context, user string, limit int) ([]*domain.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*domain.Event
	for _, e := range a.data {
		if e.User() == user {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber > result[j].BlockNumber
		}
		return result[i].LogIndex > result[j].LogIndex
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetDailyVolume sums archived swaps of user per UTC day in [from, to].
func (a *EventArchive) GetDailyVolume(_ context.Context, user string, from, to string) ([]*domain.VolumePoint, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	points := make(map[string]*domain.VolumePoint)
	for _, e := range a.data {
		if e.Kind != domain.KindSwapExecuted || e.Swap.User != user {
			continue
		}
		date := utcDate(e.Timestamp)
		if date < from || date > to {
			continue
		}
		p, ok := points[date]
		if !ok {
			p = &domain.VolumePoint{Date: date, Volume: decimal.Zero}
			points[date] = p
		}
		p.Volume = p.Volume.Add(e.Swap.AmountIn)
		p.SwapCount++
	}

	result := make([]*domain.VolumePoint, 0, len(points))
	for _, p := range points {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})
	return result, nil
}
