package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its journal, notifiers, metrics and overdue scan",
		Long: `Builds the circulation engine from the configuration, serves metrics, and runs the overdue scan
on its schedule until SIGINT or SIGTERM.

serve hosts the engine and its collaborators only. It exposes no API for registering items or
holders, so its catalog starts and stays empty and the overdue scan finds nothing until a program
embedding the circulation package fills it. Use "demo" to see a populated catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli) error {
	logger, err := newLogger(c.cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	d, err := buildDaemon(ctx, c.cfg, logger, os.Stdout)
	if err != nil {
		return fmt.Errorf("building daemon: %w", err)
	}

	if err = d.start(ctx); err != nil {
		return errors.Join(fmt.Errorf("starting daemon: %w", err), d.shutdown(context.Background()))
	}

	logger.Info("circulation daemon started",
		"library", c.cfg.LibraryName,
		"journal", c.cfg.Journal.Driver,
		"metrics", c.cfg.Metrics.Backend,
		"scan_schedule", c.cfg.Scan.Schedule,
	)

	<-ctx.Done()
	logger.Info("circulation daemon stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return d.shutdown(shutdownCtx)
}
