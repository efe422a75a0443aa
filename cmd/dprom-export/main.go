package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haileys/dprom/internal/app"
	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/logging"
	"github.com/haileys/dprom/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "dprom-export",
		Usage:   "Export metrics published over D-Bus to Prometheus",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
			},
			&cli.BoolFlag{
				Name:  "system",
				Usage: "discover metrics on the system bus",
			},
			&cli.BoolFlag{
				Name:  "session",
				Usage: "discover metrics on the session bus",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to serve metrics on, e.g. 127.0.0.1:9207",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level: trace, debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "log format: text or json",
			},
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Critical(context.Background(), slog.Default(), "dprom-export failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cli.Command) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}
	if cmd.Bool("debug") && !cmd.IsSet("log-level") {
		level = slog.LevelDebug
	}

	logger, err := logging.New(os.Stdout, level, cmd.String("log-format"))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return logger, nil
}

// loadConfig reads the configuration file, if any, and applies the
// command line overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	raw := &config.RawConfig{}
	if path := cmd.String("config"); path != "" {
		var err error
		raw, err = config.Parse(path)
		if err != nil {
			return nil, err
		}
	}

	if cmd.IsSet("listen") {
		raw.HTTP.Listen = cmd.String("listen")
	}
	if cmd.IsSet("system") || cmd.IsSet("session") {
		system, session := cmd.Bool("system"), cmd.Bool("session")
		raw.DBus.System = &system
		raw.DBus.Session = &session
	}

	return config.Resolve(raw)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	logger, err := setupLogging(cmd)
	if err != nil {
		return err
	}

	logger.Info("starting dprom-export", "version", version.String(), "config", cmd.String("config"))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(shutdownCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer application.Close()

	if err := application.Run(shutdownCtx); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
