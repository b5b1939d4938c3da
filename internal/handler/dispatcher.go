// Package handler applies normalized events to the aggregate store.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/kv"
	"wooswap-indexer/internal/observability"
	"wooswap-indexer/internal/storage"
)

// Outcome describes what Handle did with an event.
type Outcome int

const (
	// Applied means the event mutated state for the first time.
	Applied Outcome = iota
	// Duplicate means the event was already applied and was skipped.
	Duplicate
	// Stale means a newer event for the same token was already applied.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Notifier receives breakup announcements after they commit.
// NotifyBreakup must not block.
type Notifier interface {
	NotifyBreakup(user string)
}

// Dispatcher routes events to the per-kind handlers.
type Dispatcher struct {
	store        *aggregate.Store
	notifier     Notifier
	archives     []storage.EventArchive
	locks        *keyedMutex
	maxConflicts int
	logger       *logrus.Entry
}

// Options contains configuration for creating a Dispatcher.
type Options struct {
	Store    *aggregate.Store
	Notifier Notifier               // optional
	Archives []storage.EventArchive // optional, written after commit
	// MaxConflictRetries bounds retries when a concurrent writer touched
	// the same keys. Default: 5.
	MaxConflictRetries int
	Logger             *logrus.Entry
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	maxConflicts := opts.MaxConflictRetries
	if maxConflicts == 0 {
		maxConflicts = 5
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "handler")
	}

	return &Dispatcher{
		store:        opts.Store,
		notifier:     opts.Notifier,
		archives:     opts.Archives,
		locks:        newKeyedMutex(),
		maxConflicts: maxConflicts,
		logger:       logger,
	}
}

// Handle applies one event. Writes for the same subject are serialized.
// The write runs on a context detached from ctx cancellation so a
// shutdown never interrupts a commit half way. Errors are store failures
// and the event may be retried.
func (d *Dispatcher) Handle(ctx context.Context, e *domain.Event) (Outcome, error) {
	start := time.Now()

	unlock := d.locks.Lock(e.Subject())
	defer unlock()

	wctx := context.WithoutCancel(ctx)

	var (
		outcome Outcome
		err     error
	)
	for attempt := 0; attempt <= d.maxConflicts; attempt++ {
		outcome, err = d.apply(wctx, e)
		if !errors.Is(err, kv.ErrTxConflict) {
			break
		}
		d.logger.WithFields(eventFields(e)).Debug("Write conflict, retrying")
	}

	observability.RecordHandlerLatency(string(e.Kind), time.Since(start).Seconds())
	if err != nil {
		observability.RecordStoreError(string(e.Kind))
		return outcome, fmt.Errorf("handle %s %s:%d: %w", e.Kind, e.TxHash, e.LogIndex, err)
	}
	observability.RecordEventProcessed(string(e.Kind), outcome.String())

	if outcome != Applied {
		d.logger.WithFields(eventFields(e)).WithField("outcome", outcome).Debug("Event skipped")
		return outcome, nil
	}

	d.archive(wctx, e)

	if e.Kind == domain.KindBreakUp && d.notifier != nil {
		d.notifier.NotifyBreakup(e.BreakUp.User)
	}
	return outcome, nil
}

func (d *Dispatcher) apply(ctx context.Context, e *domain.Event) (Outcome, error) {
	switch e.Kind {
	case domain.KindSwapExecuted:
		return d.handleSwap(ctx, e)
	case domain.KindBreakUp:
		return d.handleBreakUp(ctx, e)
	case domain.KindAffectionUpdated:
		return d.handleAffection(ctx, e)
	case domain.KindRebatePaid:
		return d.handleRebate(ctx, e)
	}
	return Applied, fmt.Errorf("%w: unknown event kind %q", storage.ErrInvalidInput, e.Kind)
}

// archive appends the event to every configured archive.
// Archive failures are logged and never fail the event.
func (d *Dispatcher) archive(ctx context.Context, e *domain.Event) {
	for _, a := range d.archives {
		err := a.Insert(ctx, e)
		if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		observability.RecordArchiveError(fmt.Sprintf("%T", a))
		d.logger.WithFields(eventFields(e)).WithError(err).Warn("Failed to archive event")
	}
}

func eventFields(e *domain.Event) logrus.Fields {
	return logrus.Fields{
		"kind":      e.Kind,
		"tx_hash":   e.TxHash,
		"log_index": e.LogIndex,
		"subject":   e.Subject(),
	}
}
