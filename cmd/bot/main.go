package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tchudometro/internal/config"
	"tchudometro/internal/database"
	"tchudometro/internal/discord"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store database.Store
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := database.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize database")
		}
		defer db.Close()
		store = database.NewPostgresStore(db)
	default:
		store = database.NewFileStore(cfg.DataFile)
	}

	repository, err := database.NewRepository(ctx, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load guild state")
	}

	// Initialize Discord bot
	bot, err := discord.New(cfg, repository, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Discord bot")
	}

	if err := bot.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start bot")
	}

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info().Msg("shutting down bot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bot.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to persist state on shutdown")
	}
}
