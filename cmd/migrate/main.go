package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/infra/sqlstore"
	"github.com/dvloznov/mailledger/internal/logger"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

var (
	target        = flag.String("target", "postgres", "Database to migrate: postgres or bigquery")
	configPath    = flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	projectID     = flag.String("project", "", "GCP project ID (defaults to GCP_PROJECT_ID)")
	datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to BIGQUERY_DATASET)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to BigQuery migrations directory")
)

func main() {
	flag.Parse()
	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := logger.WithContext(context.Background(), log)

	switch *target {
	case "postgres":
		migratePostgres(log, cfg)
	case "bigquery":
		migrateBigQuery(ctx, log, cfg)
	default:
		log.Fatal().Str("target", *target).Msg("Unknown target, expected postgres or bigquery")
	}
}

func migratePostgres(log zerolog.Logger, cfg *config.Config) {
	if err := cfg.Require("DATABASE_URL"); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	before, after, err := sqlstore.MigrateUp(db)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if before == after {
		log.Info().Uint("version", after).Msg("No new migrations to apply. Database is up to date.")
		return
	}
	log.Info().Uint("from", before).Uint("to", after).Msg("Applied migrations")
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger, cfg *config.Config) {
	project, dataset := *projectID, *datasetID
	if project == "" {
		project = cfg.GCP.ProjectID
	}
	if dataset == "" {
		dataset = cfg.GCP.BigQueryDataset
	}
	if project == "" || dataset == "" {
		log.Fatal().Msg("Error: -project and -dataset (or GCP_PROJECT_ID and BIGQUERY_DATASET) are required")
	}

	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", project).Str("dataset", dataset).Msg("Connected to BigQuery")

	r := &bqRunner{client: client, projectID: project, datasetID: dataset, appliedBy: *appliedBy}

	// Ensure schema_migrations table exists
	if err := r.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
	}

	dir, err := findMigrationsDir(*migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to find migrations")
	}
	migrations, err := readMigrations(os.DirFS(dir), project, dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	// Apply pending migrations
	appliedCount := 0
	for _, m := range pending(migrations, applied) {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Running migration")

		if err := r.run(ctx, m.SQL); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Msg("Failed to execute migration")
		}
		if err := r.record(ctx, m); err != nil {
			log.Fatal().Err(err).Int("version", m.Version).Msg("Failed to record migration")
		}
		appliedCount++
	}

	if appliedCount == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("count", appliedCount).Msg("Successfully applied migrations")
	}
}
