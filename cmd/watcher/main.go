package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/mailledger/internal/app"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/pipeline"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	interval := flag.Duration("interval", 0, "Poll the mailbox at this interval; 0 runs once and exits")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.Component(logger.WithLevel(log, cfg.LogLevel), "watcher")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := cfg.RequireBackends(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if cfg.Queue.Backend == config.BackendMemory {
		log.Fatal().Msg("The watcher needs a pubsub or kafka queue; the memory queue only works inside one process")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	a := app.New(cfg, log)
	defer a.Close()

	watcher, err := a.Watcher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create watcher")
	}

	if *interval <= 0 {
		if _, err := runOnce(ctx, watcher); err != nil {
			log.Fatal().Err(err).Msg("Watcher run failed")
		}
		return
	}

	log.Info().Dur("interval", *interval).Msg("Starting watcher service")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if _, err := runOnce(ctx, watcher); err != nil {
			log.Error().Err(err).Msg("Watcher run failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Watcher service exited")
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, w *pipeline.Watcher) (pipeline.Summary, error) {
	summary, err := w.Run(ctx)
	if err != nil {
		return summary, err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("listed", summary.Listed).
		Int("skipped", summary.Skipped).
		Int("published", summary.Published).
		Int("failed", summary.Failed).
		Msg("Watcher run completed")
	return summary, nil
}
