package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/logging"
	"github.com/haileys/dprom/internal/producer"
	"github.com/haileys/dprom/internal/version"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := &cli.Command{
		Name:    "dprom-file-gauge",
		Usage:   "Publish numeric values read from files as dprom gauges",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to configuration file",
				Required: true,
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
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Critical(context.Background(), slog.Default(), "dprom-file-gauge failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return err
	}
	if cmd.Bool("debug") && !cmd.IsSet("log-level") {
		level = slog.LevelDebug
	}
	logger, err := logging.New(os.Stdout, level, "text")
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.LoadGauges(cmd.String("config"))
	if err != nil {
		return err
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, kind, err := producer.Dial(shutdownCtx, cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to a bus: %w", err)
	}
	defer conn.Close()

	logger = logger.With("dbus", string(kind))

	server, err := producer.Serve(conn, cfg.Gauges, logger)
	if err != nil {
		return err
	}

	sampler := producer.NewSampler(cfg, server, logger)

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error {
		return sampler.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-conn.Context().Done():
			return errors.New("bus connection lost")
		}
	})

	logger.Info("serving gauges", "gauges", len(cfg.Gauges), "refresh", cfg.Refresh, "notify", cfg.Notify)
	return g.Wait()
}
