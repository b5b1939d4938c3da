// Package main writes a leaderboard snapshot (REPORT.md and top_users.csv)
// from the configured stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"wooswap-indexer/internal/app"
	"wooswap-indexer/internal/config"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/ingestion"
	"wooswap-indexer/internal/logging"
	"wooswap-indexer/internal/query"
	"wooswap-indexer/internal/reporting"
	"wooswap-indexer/internal/verification"
)

func main() {
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	date := flag.String("date", "", "UTC date (YYYY-MM-DD) for the daily volume section, default today")
	top := flag.Int("top", query.DefaultLimit, "Rows per leaderboard")
	verify := flag.Bool("verify", false, "Rebuild user stats from the event archive and report divergences")
	fixture := flag.String("file", "", "Replay an NDJSON event file (- for stdin) before reporting, useful with --use-memory")

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.Component("report")

	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open stores")
	}
	defer stores.Close()

	if *fixture != "" {
		dispatcher := handler.New(handler.Options{
			Store:    stores.Aggregate,
			Archives: stores.Archives,
			Logger:   logging.Component("handler"),
		})
		runner := ingestion.NewRunner(ingestion.RunnerOptions{
			Sources: []ingestion.Source{ingestion.NewPathSource(*fixture, logging.Component("file-source"))},
			Handler: dispatcher,
			Workers: cfg.Workers,
			Logger:  logging.Component("runner"),
		})
		if err := runner.Run(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to replay fixture")
		}
	}

	svc := query.New(query.Options{
		Store:   stores.Aggregate,
		Archive: stores.Events,
		History: stores.History,
		Logger:  logging.Component("query"),
	})
	gen := reporting.NewGenerator(svc, *top)

	if *verify {
		if stores.Events == nil {
			logger.Fatal("--verify needs an event archive (POSTGRES_DSN or CLICKHOUSE_DSN, or --file)")
		}
		gen = gen.WithVerifier(verification.NewStatsVerifier(stores.Aggregate, stores.Events, logging.Component("verification")))
	}

	report, err := gen.Generate(ctx, *date)
	if err != nil {
		logger.WithError(err).Fatal("Failed to generate report")
	}

	csvOut, err := reporting.RenderCSV(report.TopUsers)
	if err != nil {
		logger.WithError(err).Fatal("Failed to render CSV")
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create output directory")
	}
	files := map[string]string{
		"REPORT.md":     reporting.RenderMarkdown(report),
		"top_users.csv": csvOut,
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logger.WithError(err).WithField("path", path).Fatal("Failed to write report file")
		}
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", filepath.Join(*outputDir, "REPORT.md"))
	fmt.Printf("  - %s\n", filepath.Join(*outputDir, "top_users.csv"))
}
