package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/chain"
	"wooswap-indexer/internal/normalize"
	"wooswap-indexer/internal/observability"
)

// Chain source defaults.
const (
	DefaultBlockWindow        = 2000
	DefaultPollInterval       = 5 * time.Second
	DefaultTimestampCacheSize = 4096
)

// ChainSourceConfig configures a ChainSource.
type ChainSourceConfig struct {
	// Contracts are the addresses whose logs are indexed.
	Contracts []string
	// FromBlock starts a backfill at this block. Nil indexes from the head only.
	FromBlock *uint64
	// BlockWindow is the eth_getLogs range size during backfill.
	BlockWindow uint64
	// PollInterval is used when no WebSocket client is configured.
	PollInterval       time.Duration
	TimestampCacheSize int
	Logger             *logrus.Entry
}

// ChainSource reads contract logs from an EVM node: an optional
// eth_getLogs backfill, then live logs from a WebSocket subscription or,
// without one, by polling. Logs removed by a reorg are skipped.
type ChainSource struct {
	rpc        chain.RPCClient
	ws         chain.WSClient
	cfg        ChainSourceConfig
	timestamps *lru.Cache[uint64, int64]
	logger     *logrus.Entry
}

// NewChainSource creates a chain source. ws may be nil.
func NewChainSource(rpc chain.RPCClient, ws chain.WSClient, cfg ChainSourceConfig) (*ChainSource, error) {
	if rpc == nil {
		return nil, fmt.Errorf("chain source requires an RPC client")
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("chain source requires at least one contract address")
	}
	if cfg.BlockWindow == 0 {
		cfg.BlockWindow = DefaultBlockWindow
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TimestampCacheSize <= 0 {
		cfg.TimestampCacheSize = DefaultTimestampCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "chain-source")
	}

	cache, err := lru.New[uint64, int64](cfg.TimestampCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create timestamp cache: %w", err)
	}

	return &ChainSource{
		rpc:        rpc,
		ws:         ws,
		cfg:        cfg,
		timestamps: cache,
		logger:     logger,
	}, nil
}

// Name implements Source.
func (s *ChainSource) Name() string { return "chain" }

func (s *ChainSource) filter(from, to *uint64) chain.LogFilter {
	return chain.LogFilter{
		Addresses: s.cfg.Contracts,
		Topics:    [][]string{normalize.Topics()},
		FromBlock: from,
		ToBlock:   to,
	}
}

// Subscribe implements Source. The live subscription is opened before the
// backfill so no block between the two is missed.
func (s *ChainSource) Subscribe(ctx context.Context) (<-chan *Message, error) {
	var live <-chan chain.Log
	if s.ws != nil {
		var err error
		live, err = s.ws.SubscribeLogs(ctx, s.filter(nil, nil))
		if err != nil {
			return nil, fmt.Errorf("subscribe logs: %w", err)
		}
	}

	head, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get head block: %w", err)
	}

	out := make(chan *Message, 256)
	go func() {
		defer close(out)

		backfilled := false
		if from := s.cfg.FromBlock; from != nil && *from <= head {
			s.logger.WithFields(logrus.Fields{"from": *from, "to": head}).Info("Starting backfill")
			if err := s.fetchRange(ctx, out, *from, head); err != nil {
				if ctx.Err() == nil {
					s.logger.WithError(err).Error("Backfill failed")
				}
				return
			}
			backfilled = true
			s.logger.WithField("head", head).Info("Backfill complete")
		}

		if live != nil {
			s.streamLive(ctx, out, live, head, backfilled)
			return
		}
		s.poll(ctx, out, head)
	}()

	return out, nil
}

// fetchRange emits logs in [from, to] in chain order, window by window.
func (s *ChainSource) fetchRange(ctx context.Context, out chan<- *Message, from, to uint64) error {
	for start := from; start <= to; start += s.cfg.BlockWindow {
		end := start + s.cfg.BlockWindow - 1
		if end > to || end < start {
			end = to
		}

		logs, err := s.rpc.GetLogs(ctx, s.filter(&start, &end))
		if err != nil {
			return fmt.Errorf("get logs %d-%d: %w", start, end, err)
		}
		SortLogs(logs)
		logs, dropped := CompactLogs(logs)
		if dropped > 0 {
			observability.RecordEventDropped("duplicate_log")
			s.logger.WithFields(logrus.Fields{"from": start, "to": end, "dropped": dropped}).Warn("Node returned repeated log positions")
		}

		for i := range logs {
			if !s.emit(ctx, out, &logs[i]) {
				return ctx.Err()
			}
		}
		observability.UpdateHighestBlock(end)

		if end == to {
			break
		}
	}
	return nil
}

// streamLive forwards subscription logs. After the WS client resubscribes,
// logs from the last indexed block up to the new head are fetched with
// eth_getLogs, since the node does not replay what was emitted while the
// connection was down. Overlap with live delivery is absorbed downstream by
// the dedup gate.
func (s *ChainSource) streamLive(ctx context.Context, out chan<- *Message, live <-chan chain.Log, head uint64, backfilled bool) {
	// Live logs at or below covered were already fetched by eth_getLogs.
	covered, skip := head, backfilled
	last := head

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ws.Resubscribed():
			to, err := s.fillGap(ctx, out, last)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WithError(err).WithField("from", last).Error("Failed to fill gap after reconnect, logs may be missing")
				continue
			}
			if to > last {
				last = to
			}
			covered, skip = last, true
		case l, ok := <-live:
			if !ok {
				s.logger.Warn("Log subscription closed")
				return
			}
			block := uint64(l.BlockNumber)
			if skip && block <= covered {
				continue
			}
			if !s.emit(ctx, out, &l) {
				return
			}
			if block > last {
				last = block
			}
			observability.UpdateHighestBlock(block)
		}
	}
}

// fillGap fetches logs in [from, head] and returns the head it fetched to.
func (s *ChainSource) fillGap(ctx context.Context, out chan<- *Message, from uint64) (uint64, error) {
	var to uint64
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Minute
	err := backoff.Retry(func() error {
		head, err := s.rpc.BlockNumber(ctx)
		if err != nil {
			return err
		}
		to = head
		if head < from {
			return nil
		}
		s.logger.WithFields(logrus.Fields{"from": from, "to": head}).Info("Fetching logs missed while disconnected")
		err = s.fetchRange(ctx, out, from, head)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx))
	return to, err
}

func (s *ChainSource) poll(ctx context.Context, out chan<- *Message, last uint64) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := s.rpc.BlockNumber(ctx)
			if err != nil {
				s.logger.WithError(err).Warn("Poll head failed")
				continue
			}
			if head <= last {
				continue
			}
			if err := s.fetchRange(ctx, out, last+1, head); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WithError(err).Warn("Poll logs failed")
				continue
			}
			last = head
		}
	}
}

// emit decodes l and sends it. It returns false only when ctx is done.
func (s *ChainSource) emit(ctx context.Context, out chan<- *Message, l *chain.Log) bool {
	log := s.logger.WithFields(logrus.Fields{
		"tx":        l.TransactionHash,
		"log_index": uint64(l.LogIndex),
		"block":     uint64(l.BlockNumber),
	})

	observability.RecordEventReceived(s.Name())
	if l.Removed {
		observability.RecordEventDropped("removed")
		log.Info("Skipping log removed by reorg")
		return true
	}

	ts, err := s.blockTimestamp(ctx, uint64(l.BlockNumber))
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		observability.RecordEventDropped("timestamp")
		log.WithError(err).Error("Dropping log without block timestamp")
		return true
	}

	raw, err := normalize.DecodeLog(l, ts)
	if err != nil {
		observability.RecordEventDropped("decode")
		log.WithError(err).Warn("Dropping undecodable log")
		return true
	}

	select {
	case out <- &Message{Raw: raw}:
		return true
	case <-ctx.Done():
		return false
	}
}

// blockTimestamp resolves a block timestamp through the cache, retrying
// transient RPC failures.
func (s *ChainSource) blockTimestamp(ctx context.Context, number uint64) (int64, error) {
	if ts, ok := s.timestamps.Get(number); ok {
		return ts, nil
	}

	var ts int64
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	err := backoff.Retry(func() error {
		var err error
		ts, err = s.rpc.GetBlockTimestamp(ctx, number)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return 0, err
	}

	s.timestamps.Add(number, ts)
	return ts, nil
}
