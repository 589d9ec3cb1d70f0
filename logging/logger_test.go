package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"petbattle/config"
)

func TestInitWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle.log")
	log, err := Init(config.LoggingConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	log.Infow("player joined", "player", "alice")
	log.Debug("filtered out")
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, "player joined") || !strings.Contains(out, "alice") {
		t.Fatalf("expected info line in log file, got %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Fatalf("expected debug line filtered at info level")
	}
	if Log != log {
		t.Fatalf("expected package logger to be replaced")
	}
}
