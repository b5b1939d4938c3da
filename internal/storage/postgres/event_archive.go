package postgres

import (
	"context"
	"fmt"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/idhash"
	"wooswap-indexer/internal/storage"
)

// EventArchive implements storage.EventArchive using PostgreSQL.
type EventArchive struct {
	pool *Pool
}

// NewEventArchive creates a new EventArchive.
func NewEventArchive(pool *Pool) *EventArchive {
	return &EventArchive{pool: pool}
}

var _ storage.EventArchive = (*EventArchive)(nil)

// Insert appends an event. Returns storage.ErrDuplicateKey if (tx_hash, log_index) exists.
func (a *EventArchive) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.TxHash == "" || !e.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	payload, err := e.MarshalPayload()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO indexed_events (
			tx_hash, log_index, event_id, kind, block_number,
			block_timestamp, user_address, subject, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = a.pool.Exec(ctx, query,
		e.TxHash,
		int64(e.LogIndex),
		idhash.ComputeEventID(string(e.Kind), e.TxHash, e.LogIndex),
		string(e.Kind),
		int64(e.BlockNumber),
		e.Timestamp,
		e.User(),
		e.Subject(),
		string(payload),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByUser retrieves up to limit events attributed to user, newest first.
// A non-positive limit returns all events.
func (a *EventArchive) GetByUser(ctx context.Context, user string, limit int) ([]*domain.Event, error) {
	query := `
		SELECT kind, tx_hash, log_index, block_number, block_timestamp, payload
		FROM indexed_events
		WHERE user_address = $1
		ORDER BY block_number DESC, log_index DESC
	`
	args := []any{user}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*domain.Event
	for rows.Next() {
		var (
			kind        string
			e           domain.Event
			logIndex    int64
			blockNumber int64
			payload     []byte
		)
		if err := rows.Scan(&kind, &e.TxHash, &logIndex, &blockNumber, &e.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.LogIndex = uint64(logIndex)
		e.BlockNumber = uint64(blockNumber)
		if err := e.UnmarshalPayload(payload); err != nil {
			return nil, fmt.Errorf("decode payload %s:%d: %w", e.TxHash, e.LogIndex, err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
