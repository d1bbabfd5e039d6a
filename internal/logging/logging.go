// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
)

// Options selects log level and the optional rotating file.
type Options struct {
	Level      string // debug, info, warn, error
	File       string // empty disables the file handler
	MaxSizeMB  int
	MaxBackups int
}

// multiHandler dispatches each record to every handler enabled for its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			errs = append(errs, hh.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		out[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// ParseLevel accepts debug, info, warn and error in any case. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "invalid log level %q", s)
	}
	return level, nil
}

// New builds a logger writing text to console and, when opts.File is set,
// JSON to a rotating file. The returned cleanup closes the file.
func New(opts Options, console io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	}
	cleanup := func() error { return nil }

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "create log directory").WithMetadata("file", opts.File)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			LocalTime:  true,
		}
		handlers = append(handlers, slog.NewJSONHandler(lj, &slog.HandlerOptions{
			Level:     min(level, slog.LevelDebug),
			AddSource: true,
		}))
		cleanup = lj.Close
	}

	return slog.New(&multiHandler{handlers: handlers}), cleanup, nil
}

// Setup installs the logger from New as the slog default.
func Setup(opts Options) (func() error, error) {
	logger, cleanup, err := New(opts, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}
