package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "server"}
	addServerFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	return cmd
}

// clearEnv removes the variables ApplyEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"PORT", "STATIC_PATH", "FIELDSYNC_HOST"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "server.yaml")
	writeFile(t, cfgPath, "host: 127.0.0.1\nport: 7000\nstatic_dir: web\nqueue_size: 10\n")
	missingEnv := filepath.Join(dir, "missing.env")

	tests := []struct {
		name      string
		env       map[string]string
		dotenv    string
		args      []string
		wantHost  string
		wantPort  int
		wantDir   string
		wantQueue int
		wantIdle  time.Duration
	}{
		{
			name:      "file only",
			wantHost:  "127.0.0.1",
			wantPort:  7000,
			wantDir:   "web",
			wantQueue: 10,
		},
		{
			name:      "environment overrides file",
			env:       map[string]string{"PORT": "7500", "STATIC_PATH": "public"},
			wantHost:  "127.0.0.1",
			wantPort:  7500,
			wantDir:   "public",
			wantQueue: 10,
		},
		{
			name:      "dotenv file feeds environment",
			dotenv:    "PORT=7600\nFIELDSYNC_HOST=localhost\n",
			wantHost:  "localhost",
			wantPort:  7600,
			wantDir:   "web",
			wantQueue: 10,
		},
		{
			name:      "flags override environment",
			env:       map[string]string{"PORT": "7500"},
			args:      []string{"--port", "9000", "--queue-size", "5", "--idle-timeout", "30s"},
			wantHost:  "127.0.0.1",
			wantPort:  9000,
			wantDir:   "web",
			wantQueue: 5,
			wantIdle:  30 * time.Second,
		},
		{
			name:      "unchanged flags do not override the file",
			args:      []string{"--log-level", "debug"},
			wantHost:  "127.0.0.1",
			wantPort:  7000,
			wantDir:   "web",
			wantQueue: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			envPath := missingEnv
			if tt.dotenv != "" {
				envPath = filepath.Join(t.TempDir(), ".env")
				writeFile(t, envPath, tt.dotenv)
			}

			args := append([]string{"--config", cfgPath, "--env-file", envPath}, tt.args...)
			cfg, err := loadConfig(newTestCommand(t, args...))
			if err != nil {
				t.Fatalf("loadConfig() error = %v", err)
			}

			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.StaticDir != tt.wantDir {
				t.Errorf("StaticDir = %q, want %q", cfg.StaticDir, tt.wantDir)
			}
			if cfg.QueueSize != tt.wantQueue {
				t.Errorf("QueueSize = %d, want %d", cfg.QueueSize, tt.wantQueue)
			}
			if cfg.IdleTimeout != tt.wantIdle {
				t.Errorf("IdleTimeout = %s, want %s", cfg.IdleTimeout, tt.wantIdle)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	missingEnv := filepath.Join(dir, "missing.env")
	missingCfg := filepath.Join(dir, "server.yaml")

	tests := []struct {
		name string
		args []string
	}{
		{"cert without key", []string{"--cert", "cert.pem"}},
		{"ws path without slash", []string{"--ws-path", "ws"}},
		{"zero queue", []string{"--queue-size", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", missingCfg, "--env-file", missingEnv}, tt.args...)
			if _, err := loadConfig(newTestCommand(t, args...)); err == nil {
				t.Error("loadConfig() expected error")
			}
		})
	}
}

func TestLoadConfig_BadPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	dir := t.TempDir()

	cmd := newTestCommand(t, "--config", filepath.Join(dir, "server.yaml"), "--env-file", filepath.Join(dir, "missing.env"))
	if _, err := loadConfig(cmd); err == nil {
		t.Error("loadConfig() expected error for non-numeric PORT")
	}
}
