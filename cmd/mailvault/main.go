package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/mailvault/internal/config"
	"github.com/mixelka/mailvault/internal/database"
	"github.com/mixelka/mailvault/internal/email"
	"github.com/mixelka/mailvault/internal/hooks"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailvault")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Register listeners
	registry := hooks.NewRegistry(cfg.HookTimeout, logger)
	registry.Register(hooks.NewLoggingListener(logger))

	// Resolve IMAP host if not configured
	host := cfg.IMAPHost
	if host == "" {
		host, err = email.ResolveIMAPHost(cfg.IMAPUsername)
		if err != nil {
			logger.Error("failed to resolve IMAP host", "error", err)
			os.Exit(1)
		}
		logger.Info("resolved IMAP host", "host", host)
	}

	// Connect IMAP session
	client := email.NewClient(email.ClientConfig{
		Host:        host,
		Port:        cfg.IMAPPort,
		Username:    cfg.IMAPUsername,
		Password:    cfg.IMAPPassword,
		DialTimeout: cfg.DialTimeout,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to IMAP server", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	syncer := email.NewSyncer(client, db, registry, logger)

	// Shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initial sync, then poll on the configured interval
	runSync(ctx, syncer, cfg, logger)

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("mailvault stopped")
			return
		case <-ticker.C:
			runSync(ctx, syncer, cfg, logger)
		}
	}
}

func runSync(ctx context.Context, syncer *email.Syncer, cfg *config.Config, logger *slog.Logger) {
	since := time.Now().Add(-cfg.SyncWindow)
	stats, err := syncer.Sync(ctx, cfg.SyncFolder, since, cfg.SyncLimit)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return
	}
	logger.Info("sync finished", "synced", stats.Synced, "skipped", stats.Skipped, "errors", stats.Errors)
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
