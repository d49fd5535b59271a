package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/erazemk/buddybuy/internal/config"
	"github.com/erazemk/buddybuy/internal/itemsync"
	"github.com/erazemk/buddybuy/internal/localstore"
	"github.com/erazemk/buddybuy/internal/logging"
	"github.com/erazemk/buddybuy/internal/model"
	"github.com/erazemk/buddybuy/internal/remote"
	"github.com/erazemk/buddybuy/internal/session"
)

// app wires the device database, the server client, the session and the
// sync engine for one command invocation.
type app struct {
	store    *localstore.SQLite
	client   *remote.Client
	sessions *session.Manager
	engine   *itemsync.Engine
	logger   *slog.Logger
	closeLog func() error

	mu      sync.Mutex
	initial *itemsync.Task
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "buddybuy.log")
	}
	opts := logging.Options{Stderr: os.Stderr, File: logFile}
	if cfg.Verbose {
		opts.Stdout = os.Stderr
		opts.Level = slog.LevelDebug
	}
	logger, closeLog, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	store, err := localstore.Open(cfg.DBPath())
	if err != nil {
		closeLog()
		return nil, err
	}

	a := &app{
		store:    store,
		client:   remote.New(cfg.Server, nil).WithLogger(logger),
		logger:   logger,
		closeLog: closeLog,
	}
	a.client.HTTP.Timeout = timeout
	a.sessions = session.NewManager(a.client, store).WithLogger(logger)
	a.client.Token = a.sessions.Token
	a.engine = itemsync.New(itemsync.Options{
		Store:    store,
		Items:    a.client,
		Uploader: itemsync.NewUploader(a.client, logger),
		Logger:   logger,
	})
	a.sessions.Subscribe(func(id *model.Identity) {
		task := a.engine.OnSessionChange(ctx, id)
		a.mu.Lock()
		a.initial = task
		a.mu.Unlock()
	})

	if _, err := a.sessions.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for background sync work and releases resources.
func (a *app) Close() error {
	a.engine.Wait()
	err := a.store.Close()
	if cerr := a.closeLog(); err == nil {
		err = cerr
	}
	return err
}

// requireUser returns the signed-in identity.
func (a *app) requireUser() (model.Identity, error) {
	id := a.sessions.Current()
	if id == nil {
		return model.Identity{}, errors.New("not signed in, run 'buddybuy signin' first")
	}
	return *id, nil
}

// waitInitialSync waits for the sync started when the session was bound.
// It reports false when the server could not be reached in time.
func (a *app) waitInitialSync(ctx context.Context) bool {
	a.mu.Lock()
	task := a.initial
	a.mu.Unlock()
	if task == nil {
		return true
	}
	return waitTask(ctx, task) == nil
}

// waitTask waits for task for at most the configured timeout.
func waitTask(ctx context.Context, task *itemsync.Task) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return task.Wait(ctx)
}
