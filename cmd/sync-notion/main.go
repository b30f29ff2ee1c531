package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/mailledger/internal/app"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (required)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format (required)")
	source := flag.String("source", config.BackendSQL, "Where to read transactions: sql or bigquery")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	prune := flag.Bool("prune", false, "Archive Notion pages in the range whose transaction no longer exists")
	rps := flag.Float64("rps", notionsync.DefaultRequestsPerSecond, "Maximum Notion API requests per second (0 = unlimited)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.WithLevel(log, cfg.LogLevel)
	if err := cfg.Require("NOTION_TOKEN", "NOTION_DATABASE_ID"); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	// Validate required flags
	if *startDateStr == "" {
		log.Fatal().Msg("Error: --start-date is required")
	}
	if *endDateStr == "" {
		log.Fatal().Msg("Error: --end-date is required")
	}

	// Parse dates
	startDate, err := domain.ParseDate(*startDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}
	endDate, err := domain.ParseDate(*endDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}

	// Validate date range
	if endDate.Before(startDate) {
		log.Fatal().
			Str("start_date", *startDateStr).
			Str("end_date", *endDateStr).
			Msg("Error: end-date must be after start-date")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("start_date", *startDateStr).
		Str("end_date", *endDateStr).
		Str("source", *source).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	a := app.New(cfg, log)
	defer a.Close()

	var repo notionsync.TransactionSource
	switch *source {
	case config.BackendSQL:
		repo, err = a.SQLStore(ctx)
	case config.BackendBigQuery:
		repo, err = a.BigQueryStore(ctx)
	default:
		log.Fatal().Str("source", *source).Msg("Error: --source must be sql or bigquery")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction source")
	}

	notionClient := notionsync.NewNotionClient(cfg.Notion.Token, notionsync.WithRequestsPerSecond(*rps))

	// Sync transactions
	res, err := notionsync.SyncTransactions(ctx, repo, notionClient, cfg.Notion.DatabaseID, startDate, endDate,
		notionsync.Options{DryRun: *dryRun, Prune: *prune})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d deleted, %d failed.\n", res.Created, res.Updated, res.Deleted, res.Failed)
}
