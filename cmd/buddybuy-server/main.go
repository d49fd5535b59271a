package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/buddybuy/internal/api"
	"github.com/erazemk/buddybuy/internal/db"
	"github.com/erazemk/buddybuy/internal/logging"
	"github.com/erazemk/buddybuy/internal/store"
)

// purgeInterval is how often expired revoked tokens are removed.
const purgeInterval = time.Hour

func main() {
	fs := flag.NewFlagSet("buddybuy-server", flag.ContinueOnError)

	var dbPath string
	fs.StringVar(&dbPath, "db", "buddybuy.sqlite3", "")
	fs.StringVar(&dbPath, "d", "buddybuy.sqlite3", "")

	var addr string
	fs.StringVar(&addr, "addr", ":8080", "")
	fs.StringVar(&addr, "a", ":8080", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: buddybuy-server [flags]

Flags:
  -d, -db <path>          SQLite database path (default: buddybuy.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -l, -log <path>         log file path, rotated by size (default: stdout/stderr only)
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := logging.Setup(logging.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		File:   logPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// Open database, creating it on first run.
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	slog.Info("database ready", "path", dbPath)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	handler := api.LoggingMiddleware(api.NewRouter(database, jwtSecret))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go purgeTokens(ctx, func(now time.Time) (int64, error) {
		return store.PurgeExpiredTokens(ctx, database, now)
	})

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}

// purgeTokens drops expired entries from the revocation list until ctx ends.
func purgeTokens(ctx context.Context, purge func(time.Time) (int64, error)) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		n, err := purge(time.Now())
		if err != nil {
			slog.Warn("purging revoked tokens", "error", err)
		} else if n > 0 {
			slog.Info("purged revoked tokens", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
