package handler

import (
	"context"
	"errors"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/storage"
)

// Every handler checks its record key inside the same transaction that
// writes it, so a redelivered event is skipped without touching totals.

func (d *Dispatcher) handleSwap(ctx context.Context, e *domain.Event) (Outcome, error) {
	p := e.Swap
	recKey := aggregate.RecordKey(e.Kind, e.TxHash, e.LogIndex)

	var outcome Outcome
	err := d.store.Apply(ctx, []string{aggregate.UserKey(p.User), recKey}, func(tx *aggregate.Tx) error {
		outcome = Applied

		exists, err := tx.RecordExists(recKey)
		if err != nil {
			return err
		}
		if exists {
			outcome = Duplicate
			return nil
		}

		stats, err := tx.GetStats(p.User)
		if err != nil {
			return err
		}
		applySwap(stats, p, e.Timestamp)

		if err := tx.PutStats(stats); err != nil {
			return err
		}
		if err := tx.PutRecord(recKey, domain.NewSwapRecord(e)); err != nil {
			return err
		}
		tx.IncrDailyVolume(aggregate.DateOf(e.Timestamp), p.User, p.AmountIn)
		return nil
	})
	return outcome, err
}

func (d *Dispatcher) handleBreakUp(ctx context.Context, e *domain.Event) (Outcome, error) {
	p := e.BreakUp
	recKey := aggregate.RecordKey(e.Kind, e.TxHash, e.LogIndex)

	var outcome Outcome
	err := d.store.Apply(ctx, []string{aggregate.UserKey(p.User), recKey}, func(tx *aggregate.Tx) error {
		outcome = Applied

		exists, err := tx.RecordExists(recKey)
		if err != nil {
			return err
		}
		if exists {
			outcome = Duplicate
			return nil
		}

		stats, err := tx.GetStats(p.User)
		if err != nil {
			return err
		}
		applyBreakUp(stats)

		if err := tx.PutStats(stats); err != nil {
			return err
		}
		if err := tx.PutRecord(recKey, domain.NewBreakupRecord(e)); err != nil {
			return err
		}
		tx.IncrBreakups(p.User)
		return nil
	})
	return outcome, err
}

// handleAffection keeps the newest update per token by (block, log index).
// Affection stays token-keyed; no owner lookup exists.
func (d *Dispatcher) handleAffection(ctx context.Context, e *domain.Event) (Outcome, error) {
	p := e.Affection
	key := aggregate.AffectionKey(p.TokenID)

	var outcome Outcome
	err := d.store.Apply(ctx, []string{key}, func(tx *aggregate.Tx) error {
		outcome = Applied

		current, err := tx.GetAffection(p.TokenID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case current.BlockNumber == e.BlockNumber && current.LogIndex == e.LogIndex:
			outcome = Duplicate
			return nil
		case !current.Before(e.BlockNumber, e.LogIndex):
			outcome = Stale
			return nil
		}

		return tx.PutAffection(domain.NewAffectionRecord(e))
	})
	return outcome, err
}

func (d *Dispatcher) handleRebate(ctx context.Context, e *domain.Event) (Outcome, error) {
	p := e.Rebate
	recKey := aggregate.RecordKey(e.Kind, e.TxHash, e.LogIndex)

	var outcome Outcome
	err := d.store.Apply(ctx, []string{recKey}, func(tx *aggregate.Tx) error {
		outcome = Applied

		exists, err := tx.RecordExists(recKey)
		if err != nil {
			return err
		}
		if exists {
			outcome = Duplicate
			return nil
		}

		if err := tx.PutRecord(recKey, domain.NewRebateRecord(e)); err != nil {
			return err
		}
		tx.IncrTotalRebates(p.Amount)
		return nil
	})
	return outcome, err
}
