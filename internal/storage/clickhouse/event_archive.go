package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/idhash"
	"wooswap-indexer/internal/storage"
)

// EventArchive implements storage.EventArchive and storage.VolumeHistoryStore
// using ClickHouse.
type EventArchive struct {
	conn *Conn
}

// NewEventArchive creates a new EventArchive.
func NewEventArchive(conn *Conn) *EventArchive {
	return &EventArchive{conn: conn}
}

var (
	_ storage.EventArchive       = (*EventArchive)(nil)
	_ storage.VolumeHistoryStore = (*EventArchive)(nil)
)

// Insert appends an event. Returns storage.ErrDuplicateKey if (tx_hash, log_index) exists.
// MergeTree does not enforce uniqueness, so existence is checked first.
func (a *EventArchive) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.TxHash == "" || !e.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	exists, err := a.exists(ctx, e.TxHash, e.LogIndex)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	payload, err := e.MarshalPayload()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	amountIn := decimal.Zero
	if e.Kind == domain.KindSwapExecuted {
		amountIn = e.Swap.AmountIn
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO indexed_events (
			event_id, kind, tx_hash, log_index, block_number,
			block_timestamp, user_address, amount_in, payload
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		idhash.ComputeEventID(string(e.Kind), e.TxHash, e.LogIndex),
		string(e.Kind),
		e.TxHash,
		e.LogIndex,
		e.BlockNumber,
		time.Unix(e.Timestamp, 0).UTC(),
		e.User(),
		amountIn,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (a *EventArchive) exists(ctx context.Context, txHash string, logIndex uint64) (bool, error) {
	var count uint64
	err := a.conn.QueryRow(ctx, `
		SELECT count() FROM indexed_events
		WHERE tx_hash = ? AND log_index = ?
	`, txHash, logIndex).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByUser retrieves up to limit events attributed to user, newest first.
func (a *EventArchive) GetByUser(ctx context.Context, user string, limit int) ([]*domain.Event, error) {
	query := `
		SELECT kind, tx_hash, log_index, block_number, toUnixTimestamp(block_timestamp), payload
		FROM indexed_events FINAL
		WHERE user_address = ?
		ORDER BY block_number DESC, log_index DESC
	`
	args := []any{user}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := a.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			kind    string
			ts      uint32
			payload string
		)
		if err := rows.Scan(&kind, &e.TxHash, &e.LogIndex, &e.BlockNumber, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Timestamp = int64(ts)
		if err := e.UnmarshalPayload([]byte(payload)); err != nil {
			return nil, fmt.Errorf("decode payload %s:%d: %w", e.TxHash, e.LogIndex, err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}

// GetDailyVolume sums archived swaps of user per UTC day in [from, to].
func (a *EventArchive) GetDailyVolume(ctx context.Context, user string, from, to string) ([]*domain.VolumePoint, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT toString(toDate(block_timestamp)) AS day, sum(amount_in), count()
		FROM indexed_events FINAL
		WHERE user_address = ?
		  AND kind = ?
		  AND toDate(block_timestamp) BETWEEN toDate(?) AND toDate(?)
		GROUP BY day
		ORDER BY day ASC
	`, user, string(domain.KindSwapExecuted), from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer rows.Close()

	var result []*domain.VolumePoint
	for rows.Next() {
		var (
			p     domain.VolumePoint
			count uint64
		)
		if err := rows.Scan(&p.Date, &p.Volume, &count); err != nil {
			return nil, fmt.Errorf("scan volume point: %w", err)
		}
		p.SwapCount = int64(count)
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume points: %w", err)
	}
	return result, nil
}
