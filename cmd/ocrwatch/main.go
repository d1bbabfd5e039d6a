// ocrwatch watches a screen for text and reacts to it: a background rule
// watcher with an HTTP control API, one-shot find/tap helpers, and a gRPC
// recognizer service.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ocrwatch/internal/config"
	"github.com/GriffinCanCode/ocrwatch/internal/logging"
)

var (
	cfg        *config.Config
	logCleanup func() error

	rootCmd = &cobra.Command{
		Use:           "ocrwatch",
		Short:         "Watch a screen for text and act on it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg = config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			cleanup, err := logging.Setup(logging.Options{
				Level:      cfg.LogLevel,
				File:       cfg.LogFile,
				MaxSizeMB:  cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
			})
			if err != nil {
				return err
			}
			logCleanup = cleanup
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCleanup != nil {
				_ = logCleanup()
			}
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("ocrwatch failed", "error", err)
		os.Exit(1)
	}
}
