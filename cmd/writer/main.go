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
)

func main() {
	// Initialize logger
	log := logger.New()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.Component(logger.WithLevel(log, cfg.LogLevel), "writer")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := cfg.RequireBackends(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if cfg.Queue.Backend == config.BackendMemory {
		log.Fatal().Msg("The writer needs a pubsub or kafka queue; the memory queue only works inside one process")
	}

	log.Info().Str("queue", cfg.Queue.Backend).Msg("Starting writer service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a := app.New(cfg, log)
	defer a.Close()

	writer, err := a.Writer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create writer")
	}
	consumer, err := a.Consumer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create queue consumer")
	}

	// Start consuming messages
	if err := consumer.Start(ctx, writer.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start queue consumer")
	}

	log.Info().Msg("Writer service started, waiting for messages...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down writer service...")

	// Cancel context to stop receiving
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the consumer and wait for in-flight messages
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Writer service exited")
}
