package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelRouting(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closeFn, err := New(Options{Stdout: &stdout, Stderr: &stderr, Level: slog.LevelInfo})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("hello", "user", "alice")
	logger.Warn("careful")
	logger.Error("boom")

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug record should be filtered")
	}
	if !strings.Contains(stdout.String(), "hello") || !strings.Contains(stdout.String(), "careful") {
		t.Errorf("expected info and warn on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "boom") {
		t.Error("error record should not go to stdout")
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Errorf("expected error on stderr, got %q", stderr.String())
	}
}

func TestWithAttrsKeepsRouting(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closeFn, err := New(Options{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	logger.With("component", "sync").WithGroup("req").Error("failed", "id", 7)
	if !strings.Contains(stderr.String(), "component=sync") || !strings.Contains(stderr.String(), "req.id=7") {
		t.Errorf("unexpected stderr: %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout: %q", stdout.String())
	}
}

func TestFileReceivesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "buddybuy.log")
	logger, closeFn, err := New(Options{File: path})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("to file")
	logger.Error("also to file")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") || !strings.Contains(string(data), "also to file") {
		t.Errorf("unexpected log file contents: %q", data)
	}
}
