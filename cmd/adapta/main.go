package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/adapta/internal/api"
	"github.com/MikeSquared-Agency/adapta/internal/chat"
	"github.com/MikeSquared-Agency/adapta/internal/config"
	"github.com/MikeSquared-Agency/adapta/internal/events"
	"github.com/MikeSquared-Agency/adapta/internal/inference"
	"github.com/MikeSquared-Agency/adapta/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("adapta starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conversation store
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("conversation store ready")

	// Climate inference API
	climate := inference.NewClient(inference.Config{
		BaseURL:       cfg.ClimateAPIURL,
		Timeout:       cfg.ClimateAPITimeout,
		HealthTimeout: cfg.HealthTimeout,
		Attempts:      cfg.ClimateAPIAttempts,
		RetryDelay:    cfg.RetryDelay,
		RateLimit:     cfg.RateLimit,
	}, slog.Default())
	slog.Info("climate api client ready", "url", cfg.ClimateAPIURL)

	// NATS (optional, events are dropped without it)
	var pub events.Publisher = events.Discard{}
	if cfg.NatsURL != "" {
		nc, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		pub = nc
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without events")
	}

	svc := chat.New(db, climate, pub, slog.Default())

	srv := api.NewServer(api.Config{
		Port:          cfg.Port,
		UserHeader:    cfg.UserHeader,
		DefaultUser:   cfg.DefaultUser,
		ExportTempDir: cfg.ExportTempDir,
	}, svc, climate, pub, slog.Default())

	if err := pub.Publish(events.SubjectServiceStarted, events.ServiceStarted{
		Port:      cfg.Port,
		Backend:   fmt.Sprintf("%T", db),
		Timestamp: events.Timestamp(time.Now()),
	}); err != nil {
		slog.Warn("failed to publish startup event", "error", err)
	}

	if err := srv.Run(ctx); err != nil {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
	slog.Info("adapta stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
