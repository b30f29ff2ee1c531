package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/mailledger/internal/app"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/pipeline"
	"github.com/dvloznov/mailledger/internal/rules"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "refresh":
		runRefresh(log)
	case "backfill":
		runBackfill(log)
	case "rules":
		runRules(log)
	case "transactions":
		runTransactions(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Mailledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  refresh       Import new transactions from the mailbox")
	fmt.Println("  backfill      Reapply merchant rules to every stored transaction")
	fmt.Println("  rules         List, create, update or delete merchant rules")
	fmt.Println("  transactions  List stored transactions")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads the config and opens the App. The caller closes the App.
func setup(log zerolog.Logger, configPath string) (context.Context, *app.App) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.WithLevel(log, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	return logger.WithContext(context.Background(), log), app.New(cfg, log)
}

func runRefresh(log zerolog.Logger) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	cutoff := fs.String("cutoff", "", "Import messages sent after this time (YYYY-MM-DD HH:MM:SS), instead of the stored last refresh")
	fs.Parse(os.Args[2:])

	ctx, a := setup(log, *configPath)
	defer a.Close()
	if err := a.Config.Require("DATABASE_URL", "NAME"); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := a.Config.RequireBackends(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	runner, err := a.Runner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create refresh runner")
	}

	summary, err := runner.Refresh(ctx, pipeline.RefreshOptions{Cutoff: *cutoff})
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh failed")
	}

	printJSON(summary)
	fmt.Printf("%d transactions imported successfully\n", summary.Written)
}

func runBackfill(log zerolog.Logger) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	fs.Parse(os.Args[2:])

	ctx, a := setup(log, *configPath)
	defer a.Close()

	svc := ruleService(ctx, log, a)
	n, err := svc.Backfill(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backfill failed")
	}
	fmt.Printf("%d transactions updated\n", n)
}

func runRules(log zerolog.Logger) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	ruleID := fs.String("id", "", "Rule ID (update, delete)")
	original := fs.String("original", "", "Merchant text to replace (create, update)")
	renamed := fs.String("renamed", "", "Replacement text (create, update)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cli rules [options] list|create|update|delete")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	ctx, a := setup(log, *configPath)
	defer a.Close()
	svc := ruleService(ctx, log, a)

	switch fs.Arg(0) {
	case "list":
		list, err := svc.List(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list rules")
		}
		printJSON(list)
	case "create":
		rule, n, err := svc.Create(ctx, *original, *renamed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create rule")
		}
		printJSON(map[string]interface{}{"rule": rule, "backfilled_transactions": n})
	case "update":
		if *ruleID == "" {
			log.Fatal().Msg("Error: -id is required")
		}
		var update rules.RuleUpdate
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "original":
				update.MerchantOriginalName = original
			case "renamed":
				update.MerchantRenamedName = renamed
			}
		})
		rule, n, err := svc.Update(ctx, *ruleID, update)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to update rule")
		}
		printJSON(map[string]interface{}{"rule": rule, "backfilled_transactions": n})
	case "delete":
		if *ruleID == "" {
			log.Fatal().Msg("Error: -id is required")
		}
		if err := svc.Delete(ctx, *ruleID); err != nil {
			log.Fatal().Err(err).Msg("Failed to delete rule")
		}
		fmt.Printf("Deleted rule %s\n", *ruleID)
	default:
		fs.Usage()
		os.Exit(1)
	}
}

func runTransactions(log zerolog.Logger) {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	var filter domain.TransactionFilter
	fs.StringVar(&filter.Merchant, "merchant", "", "Exact merchant")
	fs.StringVar(&filter.StartDate, "start-date", "", "First date (YYYY-MM-DD)")
	fs.StringVar(&filter.EndDate, "end-date", "", "Last date (YYYY-MM-DD)")
	fs.StringVar(&filter.AccountName, "account", "", "Exact account name")
	fs.Parse(os.Args[2:])

	ctx, a := setup(log, *configPath)
	defer a.Close()

	store, err := a.SQLStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SQL store")
	}
	list, err := store.ListTransactions(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(list))
	for i, tx := range list {
		fmt.Printf("\n%d. %s\n", i+1, tx.Merchant)
		fmt.Printf("   Date:     %s\n", tx.TransactionDate)
		fmt.Printf("   Amount:   %s\n", tx.Amount)
		fmt.Printf("   Account:  %s\n", tx.AccountName)
		if tx.Category != "" {
			fmt.Printf("   Category: %s\n", tx.Category)
		}
	}
	fmt.Println()
}

func ruleService(ctx context.Context, log zerolog.Logger, a *app.App) *rules.Service {
	store, err := a.SQLStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SQL store")
	}
	return rules.NewService(store)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
