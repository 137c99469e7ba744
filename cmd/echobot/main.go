package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"echobot/internal/bus"
	"echobot/internal/channel"
	"echobot/internal/config"
	"echobot/internal/health"
	"echobot/internal/relay"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("cannot load .env", "err", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "echobot",
		Short:        "echobot: relay Discord messages between channels",
		Long:         "echobot watches Discord channels and reposts their messages to other channels according to configured redirects.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ./config.json, ./config.yaml, then $"+config.EnvConfigJSON+")")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the echobot background service",
	}
	daemon.AddCommand(installDaemonCmd())
	daemon.AddCommand(uninstallDaemonCmd())
	root.AddCommand(daemon)

	return root
}

// loadConfig finds and validates the configuration, reporting every problem.
func loadConfig() (*config.Config, string, error) {
	cfg, source, err := config.Discover(configPath)
	if err != nil {
		var cerr *config.ConfigError
		if errors.As(err, &cerr) {
			for _, p := range cerr.Problems {
				logger.Error("configuration problem", "source", source, "problem", p)
			}
		}
		return nil, source, err
	}
	return cfg, source, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start relaying",
		Long:  "Connects to Discord and relays messages until interrupted. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, source, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg.General.LogLevel, cfg.General.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log
	logger.Info("configuration loaded", "source", source, "redirects", len(cfg.Redirects))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	discord, err := channel.NewDiscord(channel.DiscordConfig{
		Token:  cfg.Token,
		Logger: logger.With("component", "discord"),
	})
	if err != nil {
		return err
	}

	r := relay.New(relay.Config{
		Redirects:          cfg.Redirects,
		Platform:           discord,
		Logger:             logger.With("component", "relay"),
		MaxConcurrentSends: cfg.General.MaxConcurrentSends,
	})

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		r.Run(ctx, messageBus, cfg.General.MaxConcurrentMessages)
	}()

	if cfg.Health.Port > 0 {
		srv := health.New(health.Config{
			Host:        cfg.Health.Host,
			Port:        cfg.Health.Port,
			MetricsPath: cfg.Health.MetricsPath,
			Logger:      logger.With("component", "health"),
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("health endpoint error", "err", err)
			}
		}()
	}

	discordDone := make(chan struct{})
	go func() {
		defer close(discordDone)
		if err := discord.Start(ctx, messageBus); err != nil {
			logger.Error("discord error", "err", err)
		}
	}()

	logger.Info("echobot started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-discordDone
		messageBus.Close()
		<-relayDone
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d redirect(s)\n", source, len(cfg.Redirects))
			for i, r := range cfg.Redirects {
				fmt.Fprintf(out, "  #%d %v -> %v\n", i+1, []string(r.Sources), []string(r.Destinations))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.logLevel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show where the configuration is loaded from",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := resolveConfigSource()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), source)
			return nil
		},
	})

	return cmd
}

// resolveConfigSource reports where Discover would read from without
// parsing anything.
func resolveConfigSource() (string, error) {
	if configPath != "" {
		return config.ExpandPath(configPath), nil
	}
	for _, candidate := range config.DefaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if raw, ok := os.LookupEnv(config.EnvConfigJSON); ok && raw != "" {
		return "$" + config.EnvConfigJSON, nil
	}
	return "", config.ErrNoConfig
}
