package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/config"
)

func TestLoadAppliesFlagOverrides(t *testing.T) {
	opts := &rootOptions{
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
		logLevel:   "error",
	}

	cfg, logger, err := opts.load(config.Config{URL: "ws://flag.test/ws", ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger")
	}
	if cfg.URL != "ws://flag.test/ws" || cfg.ConnectTimeout != time.Second {
		t.Fatalf("flag overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("log level = %s, want error", cfg.LogLevel)
	}
	if cfg.Room != config.Default().Room {
		t.Fatalf("default room lost: %s", cfg.Room)
	}
}

func TestCommandFlags(t *testing.T) {
	opts := &rootOptions{}
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{chatCmd(opts), []string{"url", "timeout", "ignore-connect-error", "user", "room", "token", "history", "metrics-addr"}},
		{probeCmd(opts), []string{"url", "timeout", "ignore-connect-error"}},
		{echoCmd(opts), []string{"addr", "shutdown-timeout"}},
	}

	for _, tt := range tests {
		for _, name := range tt.flags {
			if tt.cmd.Flags().Lookup(name) == nil {
				t.Errorf("%s: missing --%s flag", tt.cmd.Name(), name)
			}
		}
	}
}
