// Package main runs the WooSwap indexer: event sources, the sharded
// handler pool, breakup notifications and the HTTP query API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wooswap-indexer/internal/api"
	"wooswap-indexer/internal/app"
	"wooswap-indexer/internal/chain"
	"wooswap-indexer/internal/config"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/ingestion"
	"wooswap-indexer/internal/logging"
	"wooswap-indexer/internal/notify"
	"wooswap-indexer/internal/query"
)

// errSourcesClosed stops the other components when every source has ended.
var errSourcesClosed = errors.New("event sources closed")

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.Component("indexer")

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("Received signal, initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig).Warn("Received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("Indexer stopped")
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Entry) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	notifier := notify.NewBreakupNotifier(notify.Options{
		BearerToken: cfg.TwitterBearer,
		APIBase:     cfg.TwitterAPIBase,
		Logger:      logging.Component("notify"),
	})

	dispatcher := handler.New(handler.Options{
		Store:    stores.Aggregate,
		Notifier: notifier,
		Archives: stores.Archives,
		Logger:   logging.Component("handler"),
	})

	sources, closeSources, err := buildSources(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Sources: sources,
		Handler: dispatcher,
		Workers: cfg.Workers,
		Logger:  logging.Component("runner"),
	})

	server := api.NewServer(api.Options{
		Query: query.New(query.Options{
			Store:   stores.Aggregate,
			Archive: stores.Events,
			History: stores.History,
		}),
		Health: stores.Aggregate,
		Logger: logging.Component("api"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runner.Run(gctx); err != nil {
			return fmt.Errorf("runner: %w", err)
		}
		if gctx.Err() == nil {
			return errSourcesClosed
		}
		return nil
	})
	g.Go(func() error {
		return notifier.Run(gctx)
	})
	g.Go(func() error {
		if err := server.Run(gctx, cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	logger.WithFields(logrus.Fields{
		"sources": len(sources),
		"workers": cfg.Workers,
		"http":    cfg.HTTPAddr,
	}).Info("Indexer started")
	return g.Wait()
}

// buildSources creates the chain and Kafka sources named by cfg.
// The returned func closes the WebSocket client.
func buildSources(ctx context.Context, cfg *config.Config) ([]ingestion.Source, func(), error) {
	var (
		sources []ingestion.Source
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.RPCEndpoint != "" {
		rpc := chain.NewHTTPClient(cfg.RPCEndpoint)

		var ws chain.WSClient
		if cfg.WSEndpoint != "" {
			client, err := chain.NewWSClient(ctx, cfg.WSEndpoint, &chain.WSClientConfig{
				Logger: logging.Component("ws"),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("create websocket client: %w", err)
			}
			closers = append(closers, func() { client.Close() })
			ws = client
		}

		src, err := ingestion.NewChainSource(rpc, ws, ingestion.ChainSourceConfig{
			Contracts: cfg.Contracts,
			FromBlock: cfg.FromBlock,
			Logger:    logging.Component("chain-source"),
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sources = append(sources, src)
	}

	if len(cfg.KafkaBrokers) > 0 {
		src, err := ingestion.NewKafkaSource(ingestion.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logging.Component("kafka-source"))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		// The runner closes the reader after the last ack.
		sources = append(sources, src)
	}

	return sources, closeAll, nil
}
