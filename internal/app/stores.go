// Package app wires configured backends for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/config"
	"wooswap-indexer/internal/kv"
	"wooswap-indexer/internal/kv/memory"
	"wooswap-indexer/internal/kv/redis"
	"wooswap-indexer/internal/storage"
	chstore "wooswap-indexer/internal/storage/clickhouse"
	"wooswap-indexer/internal/storage/migrations"
	memarchive "wooswap-indexer/internal/storage/memory"
	pgstore "wooswap-indexer/internal/storage/postgres"
)

// Stores holds every storage backend selected by the configuration.
type Stores struct {
	KV        kv.Store
	Aggregate *aggregate.Store
	// Archives receive every committed event. May be empty.
	Archives []storage.EventArchive
	// Events serves user history. Nil without an archive.
	Events storage.EventArchive
	// History serves volume history. Nil without ClickHouse or memory mode.
	History storage.VolumeHistoryStore

	closers []func()
}

// OpenStores connects the aggregate store and the optional archives,
// applying archive migrations first.
func OpenStores(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*Stores, error) {
	s := &Stores{}

	if cfg.UseMemory {
		logger.Info("Using in-memory aggregate store")
		s.KV = memory.NewStore()
	} else {
		store, err := redis.NewStore(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
		s.KV = store
	}
	s.closers = append(s.closers, func() { s.KV.Close() })
	s.Aggregate = aggregate.NewStore(s.KV)

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		archive := pgstore.NewEventArchive(pool)
		s.Archives = append(s.Archives, archive)
		s.Events = archive
		logger.Info("PostgreSQL event archive enabled")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		archive := chstore.NewEventArchive(conn)
		s.Archives = append(s.Archives, archive)
		if s.Events == nil {
			s.Events = archive
		}
		s.History = archive
		logger.Info("ClickHouse analytics archive enabled")
	}

	// Memory mode keeps a process-local archive so history endpoints work.
	if cfg.UseMemory && len(s.Archives) == 0 {
		archive := memarchive.NewEventArchive()
		s.Archives = append(s.Archives, archive)
		s.Events = archive
		s.History = archive
	}

	return s, nil
}

// Close releases every backend in reverse open order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
