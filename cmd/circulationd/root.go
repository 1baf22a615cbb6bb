package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/config"
)

// cli carries the flags and the loaded configuration shared by all subcommands.
type cli struct {
	configFile string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:     "circulationd",
		Short:   "Library circulation engine",
		Long:    `Tracks which items of a library are on loan, who waits for them, and who should be reminded about overdue items.`,
		Version: version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			c.cfg = cfg

			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "",
		"config file (default: built-in defaults and CIRCULATION_* environment variables)")

	rootCmd.AddCommand(newServeCmd(c), newDemoCmd(c))

	return rootCmd
}

// newLogger builds the slog logger the daemon hands to every component.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := (config.Config{Log: cfg}).LogLevel()
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options)), nil
	}

	return slog.New(slog.NewTextHandler(w, options)), nil
}
