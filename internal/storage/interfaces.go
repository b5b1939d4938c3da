package storage

import (
	"context"

	"wooswap-indexer/internal/domain"
)

// EventArchive is an append-only archive of committed events, kept for audit
// and history queries alongside the aggregate store.
type EventArchive interface {
	// Insert appends an event. Returns ErrDuplicateKey if (tx_hash, log_index) exists.
	Insert(ctx context.Context, e *domain.Event) error

	// GetByUser retrieves up to limit events attributed to user,
	// newest first (block number DESC, log index DESC).
	GetByUser(ctx context.Context, user string, limit int) ([]*domain.Event, error)
}

// VolumeHistoryStore answers per-day swap volume questions from archived swaps.
type VolumeHistoryStore interface {
	// GetDailyVolume returns one point per UTC day in [from, to] (inclusive,
	// YYYY-MM-DD) on which user swapped, ordered by date ASC.
	GetDailyVolume(ctx context.Context, user string, from, to string) ([]*domain.VolumePoint, error)
}
