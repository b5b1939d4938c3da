package ingestion

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/normalize"
	"wooswap-indexer/internal/observability"
)

// Handler applies one normalized event.
type Handler interface {
	Handle(ctx context.Context, e *domain.Event) (handler.Outcome, error)
}

// Runner defaults.
const (
	DefaultWorkers              = 8
	DefaultQueueSize            = 256
	DefaultInitialRetryInterval = 100 * time.Millisecond
	DefaultMaxRetryInterval     = 10 * time.Second
	ackTimeout                  = 10 * time.Second
)

// Runner fans events from all sources into a fixed pool of workers.
// Each event goes to the worker owning its subject, so events for one
// address are handled in arrival order.
type Runner struct {
	sources         []Source
	handler         Handler
	workers         int
	queueSize       int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *logrus.Entry
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Sources []Source
	Handler Handler
	// Workers is the number of shards. Default: 8.
	Workers int
	// QueueSize is the per-worker buffer. Default: 256.
	QueueSize            int
	InitialRetryInterval time.Duration
	MaxRetryInterval     time.Duration
	Logger               *logrus.Entry
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	initial := opts.InitialRetryInterval
	if initial == 0 {
		initial = DefaultInitialRetryInterval
	}

	maxInterval := opts.MaxRetryInterval
	if maxInterval == 0 {
		maxInterval = DefaultMaxRetryInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "runner")
	}

	return &Runner{
		sources:         opts.Sources,
		handler:         opts.Handler,
		workers:         workers,
		queueSize:       queueSize,
		initialInterval: initial,
		maxInterval:     maxInterval,
		logger:          logger,
	}
}

type job struct {
	msg   *Message
	event *domain.Event
}

// Run consumes every source until all of them close. Cancelling ctx makes
// the sources stop; events already queued are still handled before Run
// returns. Sources implementing io.Closer are closed last.
func (r *Runner) Run(ctx context.Context) error {
	if r.handler == nil {
		return fmt.Errorf("runner requires a handler")
	}
	if len(r.sources) == 0 {
		return fmt.Errorf("runner requires at least one source")
	}

	streams := make([]<-chan *Message, 0, len(r.sources))
	for _, src := range r.sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", src.Name(), err)
		}
		streams = append(streams, ch)
		r.logger.WithField("source", src.Name()).Info("Subscribed to source")
	}

	queues := make([]chan job, r.workers)
	var workersWG sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan job, r.queueSize)
		workersWG.Add(1)
		go func(id int, q <-chan job) {
			defer workersWG.Done()
			r.work(ctx, id, q)
		}(i, queues[i])
	}

	r.logger.WithFields(logrus.Fields{
		"sources": len(r.sources),
		"workers": r.workers,
	}).Info("Runner started")

	var intakeWG sync.WaitGroup
	for i, ch := range streams {
		intakeWG.Add(1)
		go func(name string, ch <-chan *Message) {
			defer intakeWG.Done()
			r.intake(ctx, name, ch, queues)
		}(r.sources[i].Name(), ch)
	}

	intakeWG.Wait()
	for _, q := range queues {
		close(q)
	}
	workersWG.Wait()

	var errs []error
	for _, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", src.Name(), err))
			}
		}
	}

	r.logger.Info("Runner stopped")
	return errors.Join(errs...)
}

// intake normalizes messages and routes them to their shard.
func (r *Runner) intake(ctx context.Context, source string, in <-chan *Message, queues []chan job) {
	for msg := range in {
		e, err := normalize.Normalize(msg.Raw)
		if err != nil {
			observability.RecordEventDropped("malformed")
			r.logger.WithError(err).WithField("source", source).Warn("Dropping malformed event")
			r.ack(ctx, msg)
			continue
		}

		shard := ShardFor(e.Subject(), len(queues))
		queues[shard] <- job{msg: msg, event: e}
		observability.UpdateQueueDepth(strconv.Itoa(shard), len(queues[shard]))
	}
}

// ShardFor maps a subject to a worker index in [0, n).
func ShardFor(subject string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(subject))
	return int(h.Sum32() % uint32(n))
}

func (r *Runner) work(ctx context.Context, id int, q <-chan job) {
	worker := strconv.Itoa(id)
	for j := range q {
		r.process(ctx, j)
		observability.UpdateQueueDepth(worker, len(q))
	}
}

// process retries store failures with backoff until success or shutdown.
// After shutdown each queued event still gets one attempt; an event that
// fails then is left unacked for redelivery.
func (r *Runner) process(ctx context.Context, j job) {
	e := j.event
	log := r.logger.WithFields(logrus.Fields{
		"kind":      e.Kind,
		"tx_hash":   e.TxHash,
		"log_index": e.LogIndex,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0

	var outcome handler.Outcome
	err := backoff.RetryNotify(
		func() error {
			var err error
			outcome, err = r.handler.Handle(ctx, e)
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			observability.RecordEventRetry(string(e.Kind))
			log.WithError(err).WithField("retry_in", wait).Warn("Handler failed, retrying")
		},
	)
	if err != nil {
		log.WithError(err).Error("Giving up on event at shutdown, leaving it for redelivery")
		return
	}

	observability.UpdateLastEventTime(e.Timestamp)
	log.WithField("outcome", outcome).Debug("Event handled")
	r.ack(ctx, j.msg)
}

func (r *Runner) ack(ctx context.Context, msg *Message) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := msg.ack(actx); err != nil {
		r.logger.WithError(err).Warn("Ack failed")
	}
}
