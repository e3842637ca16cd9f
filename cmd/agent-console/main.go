// ABOUTME: Entry point for the agent-console operator client
// ABOUTME: Loads .env + config, wires the store client, notifier and coordinators

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/qualiver/agent-console/internal/botmode"
	"github.com/qualiver/agent-console/internal/config"
	"github.com/qualiver/agent-console/internal/console"
	"github.com/qualiver/agent-console/internal/notify"
	"github.com/qualiver/agent-console/internal/profile"
	"github.com/qualiver/agent-console/internal/remote"
	"github.com/qualiver/agent-console/internal/send"
	"github.com/qualiver/agent-console/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, envPath string) error {
	// .env is optional; config values reference its variables via ${VAR}.
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	profilePath := cfg.Operator.ProfilePath
	if profilePath == "" {
		profilePath, err = profile.DefaultPath()
		if err != nil {
			return err
		}
	}
	prof, err := profile.Load(profilePath)
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}

	client, err := remote.New(cfg.Store.URL, cfg.Store.APIKey, logger)
	if err != nil {
		return fmt.Errorf("creating store client: %w", err)
	}
	defer client.Close()

	notifier := notify.NewWebhook(cfg.Webhooks.MessageURL, cfg.Webhooks.BotStatusURL, logger)

	conversations := sync.NewConversations(client, logger)
	messages := sync.NewMessages(client, logger)
	botMode := botmode.New(client, notifier, logger)
	sender := send.New(client, notifier, logger)

	logger.Info("starting agent-console",
		"config", configPath,
		"store_url", cfg.Store.URL)

	app := console.New(conversations, messages, botMode, sender, prof, logger)
	return app.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Logs go to stderr so they interleave cleanly with console output.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
