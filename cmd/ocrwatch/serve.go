package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ocrwatch/internal/events"
	"github.com/GriffinCanCode/ocrwatch/internal/grpcserver"
	"github.com/GriffinCanCode/ocrwatch/internal/rulefile"
	"github.com/GriffinCanCode/ocrwatch/internal/server"
	"github.com/GriffinCanCode/ocrwatch/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rule watcher with the HTTP control API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := watcher.New(rt.device, rt.engine, watcher.WithDefaultConfidence(cfg.WatchConfidence))

	if cfg.EventsRedisURL != "" {
		sink, err := events.NewRedisSink(ctx, cfg.EventsRedisURL, cfg.EventsRedisChannel)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		w.AddSink(sink)
	}

	n, err := rulefile.LoadInto(w, cfg.WatchRulesFile)
	if err != nil {
		return err
	}
	if cfg.WatchRulesFile != "" {
		slog.Info("rules loaded", "file", cfg.WatchRulesFile, "count", n)
	}

	srv := server.New(w)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("ocrwatch server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.GRPCAddr != "" {
		gs := grpcserver.New(rt.engine)
		go func() {
			if err := gs.ListenAndServe(ctx, cfg.GRPCAddr); err != nil {
				errCh <- err
			}
		}()
	}

	if cfg.WatchAutostart {
		w.Start(cfg.WatchInterval)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server error", "error", runErr)
	}

	slog.Info("shutting down...")
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return runErr
}
