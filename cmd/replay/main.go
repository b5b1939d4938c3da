// Package main replays a newline-delimited JSON file of raw events
// through the indexer pipeline and prints the resulting protocol stats.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wooswap-indexer/internal/app"
	"wooswap-indexer/internal/config"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/ingestion"
	"wooswap-indexer/internal/logging"
	"wooswap-indexer/internal/query"
)

func main() {
	file := flag.String("file", "", "NDJSON file of raw events, - for stdin (required)")
	top := flag.Int("top", 0, "Also print the top N users by volume")

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// Logs go to stderr so stdout stays valid JSON.
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.Component("replay")

	if *file == "" {
		logger.Fatal("--file is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("Received signal, shutting down")
		cancel()
	}()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open stores")
	}
	defer stores.Close()

	// Replays never post notifications.
	dispatcher := handler.New(handler.Options{
		Store:    stores.Aggregate,
		Archives: stores.Archives,
		Logger:   logging.Component("handler"),
	})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Sources: []ingestion.Source{ingestion.NewPathSource(*file, logging.Component("file-source"))},
		Handler: dispatcher,
		Workers: cfg.Workers,
		Logger:  logging.Component("runner"),
	})

	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Replay failed")
	}
	logger.WithField("duration", time.Since(start)).Info("Replay complete")

	svc := query.New(query.Options{Store: stores.Aggregate})
	out := struct {
		Protocol interface{} `json:"protocol"`
		TopUsers interface{} `json:"topUsers,omitempty"`
	}{}

	stats, err := svc.ProtocolStats(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to read protocol stats")
	}
	out.Protocol = stats

	if *top > 0 {
		rows, err := svc.TopUsers(ctx, *top)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read top users")
		}
		out.TopUsers = rows
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Fatal("Failed to write output")
	}
}
