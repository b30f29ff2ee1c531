package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/mailledger/internal/api/handlers"
	"github.com/dvloznov/mailledger/internal/api/middleware"
	"github.com/dvloznov/mailledger/internal/app"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/rules"
	"golang.org/x/time/rate"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file (or set CONFIG_FILE env)")
		migrate    = flag.Bool("auto-migrate", false, "Create missing SQL tables on startup")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.WithLevel(log, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := cfg.Require("DATABASE_URL", "NAME"); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if err := cfg.RequireBackends(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx := logger.WithContext(context.Background(), log)

	a := app.New(cfg, log)
	defer a.Close()

	// Initialize repositories
	store, err := a.SQLStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open SQL store")
	}
	if *migrate {
		if err := store.AutoMigrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate SQL store")
		}
	}

	runner, err := a.Runner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create refresh runner")
	}
	writer, err := a.Writer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction writer")
	}

	// Initialize handlers
	mux := http.NewServeMux()
	handlers.Register(mux, handlers.Set{
		Transactions: handlers.NewTransactionsHandler(store, log),
		Rules:        handlers.NewRulesHandler(rules.NewService(store), log),
		Refresh:      handlers.NewRefreshHandler(runner, store, log),
		Push:         handlers.NewPushHandler(writer.Handle, log),
	})

	// Apply middleware
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.RateLimit(limiter),
		middleware.CORS,
	)

	// Create HTTP server. Refreshes walk the mailbox synchronously, so writes get a long timeout.
	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
