// Package logging configures log/slog for the BuddyBuy binaries.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// levelRouter is a slog.Handler that routes records below ERROR to one
// handler and ERROR+ to another.
type levelRouter struct {
	level  slog.Leveler
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level.Level()
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// Options selects where logs go.
type Options struct {
	// Stdout receives INFO and WARN records. Nil drops them unless File is set.
	Stdout io.Writer
	// Stderr receives ERROR records. Nil drops them unless File is set.
	Stderr io.Writer
	// File, when set, receives every record. It is rotated by size.
	File  string
	Level slog.Level
}

// Log file rotation limits.
const (
	MaxFileSizeMB = 10
	MaxBackups    = 3
	MaxAgeDays    = 28
)

// New builds a logger. The returned function closes the log file.
func New(opts Options) (*slog.Logger, func() error, error) {
	stdoutW := writerOrDiscard(opts.Stdout)
	stderrW := writerOrDiscard(opts.Stderr)
	closeFn := func() error { return nil }

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    MaxFileSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
		}
		closeFn = f.Close
		stdoutW = io.MultiWriter(stdoutW, f)
		stderrW = io.MultiWriter(stderrW, f)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	handler := &levelRouter{
		level:  opts.Level,
		stdout: slog.NewTextHandler(stdoutW, handlerOpts),
		stderr: slog.NewTextHandler(stderrW, handlerOpts),
	}
	return slog.New(handler), closeFn, nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
