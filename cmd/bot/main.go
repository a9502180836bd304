package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/solvent/service/bot"
	"github.com/brojonat/solvent/service/config"
	"github.com/brojonat/solvent/service/db"
	"github.com/brojonat/solvent/service/metrics"
	natspkg "github.com/brojonat/solvent/service/nats"
	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/temporal"
)

// alertConsumer is the durable NATS consumer name, so alerts published while
// the bot is down are delivered when it comes back.
const alertConsumer = "solvent-bot"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := config.MustLoad()
	logger := setupLogger(cfg.LogLevel)

	if cfg.DiscordToken == "" {
		logger.Error("DISCORD_TOKEN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	metricsCollector := metrics.NewMetrics(nil)
	store := db.NewStore(dbPool, metricsCollector)

	analyzer := rent.NewService(
		rent.LedgerDialer(metricsCollector, logger),
		cfg.RentOptions(),
		metricsCollector,
		logger,
	)

	// Tracking from chat also schedules the watch when Temporal is reachable.
	var scheduler temporal.Scheduler
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, tracked addresses will not be scheduled", "error", err)
	} else {
		defer temporalClient.Close()
		scheduler = temporalClient
	}

	handler := bot.NewHandler(bot.HandlerConfig{
		Store:         store,
		Analyzer:      analyzer,
		Scheduler:     scheduler,
		Targets:       cfg.Target,
		ScanLimit:     cfg.ScanLimit,
		WatchInterval: cfg.DefaultWatchInterval,
		Metrics:       metricsCollector,
		Logger:        logger,
	})

	discordBot, err := bot.New(bot.Config{
		Token:   cfg.DiscordToken,
		GuildID: cfg.DiscordGuildID,
	}, handler, logger)
	if err != nil {
		logger.Error("failed to start discord bot", "error", err)
		os.Exit(1)
	}

	subscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		discordBot.Close()
		os.Exit(1)
	}
	defer subscriber.Close()

	notifier := bot.NewAlertNotifier(store, discordBot, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return discordBot.Run(gctx)
	})
	g.Go(func() error {
		return subscriber.ConsumeAlerts(gctx, alertConsumer, notifier.HandleAlert)
	})

	logger.Info("bot running", "guild_id", cfg.DiscordGuildID, "nats_url", cfg.NATSURL)
	if err := g.Wait(); err != nil {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("bot shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
