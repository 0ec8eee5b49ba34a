// Fieldsync-server is the real-time state sync server.
//
// It serves a static frontend over HTTP and upgrades requests on the
// WebSocket path into player sessions that share positions and chat.
//
// Usage:
//
//	fieldsync-server server [flags]
//
// See 'fieldsync-server server --help' for available options.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fieldsync/internal/config"
	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/server"
	"github.com/muurk/fieldsync/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fieldsync-server",
	Short: "Fieldsync real-time state sync server",
	Long: `A WebSocket server that keeps every connected player's view of a shared
field in sync.

Players join with a nickname, move around an 800x400 field and chat. Every
change is broadcast to all connected sessions. Non-upgrade HTTP requests are
answered from a static frontend directory.

Use the separate 'fieldsync-client' utility to join from a terminal.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	configPath     string
	envFile        string
	host           string
	port           int
	certPath       string
	keyPath        string
	staticDir      string
	wsPath         string
	queueSize      int
	idleTimeout    time.Duration
	maxMessageSize int
	logLevel       string
	logFile        string
	captureDir     string
	advertise      bool
	instanceName   string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the server",
	Long: `Start the fieldsync server.

Settings are read from the configuration file (see 'fieldsync-server config'),
then from the environment (PORT, STATIC_PATH, FIELDSYNC_HOST, optionally loaded
from a .env file) and finally from any flags given on the command line.

TLS is enabled when both --cert and --key are given. To record every
WebSocket frame for later analysis, use --capture-dir.`,
	Example: `  # Start with defaults (0.0.0.0:8080, frontend in ./dist)
  fieldsync-server server

  # Custom port and debug logging
  fieldsync-server server --port 9000 --log-level debug

  # Serve over TLS and announce on the local network
  fieldsync-server server --cert fullchain.pem --key privkey.pem --advertise

  # Capture frames and write logs to a rotating file
  fieldsync-server server --capture-dir ./captures --log-file fieldsync.log`,
	RunE: runServer,
}

func init() {
	addServerFlags(serverCmd)
}

func addServerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to configuration file (default: OS config directory)")
	f.StringVar(&envFile, "env-file", ".env", "Environment file to load if present")
	f.StringVar(&host, "host", config.DefaultHost, "Interface to listen on")
	f.IntVar(&port, "port", config.DefaultPort, "Port to listen on (0 picks a free port)")
	f.StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	f.StringVar(&keyPath, "key", "", "Path to TLS private key file")
	f.StringVar(&staticDir, "static-dir", config.DefaultStaticDir, "Directory holding the built frontend")
	f.StringVar(&wsPath, "ws-path", config.DefaultWSPath, "Request path that accepts WebSocket upgrades")
	f.IntVar(&queueSize, "queue-size", config.DefaultQueueSize, "Per-session broadcast queue length")
	f.DurationVar(&idleTimeout, "idle-timeout", 0, "Close sessions idle for this long (e.g. 30s, 5m; 0 disables)")
	f.IntVar(&maxMessageSize, "max-message-size", config.DefaultMaxMessageSize, "Largest accepted message in bytes")
	f.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	f.StringVar(&captureDir, "capture-dir", "", "Directory to write frame captures (disabled if not specified)")
	f.BoolVar(&advertise, "advertise", false, "Announce the server over mDNS")
	f.StringVar(&instanceName, "instance-name", "", "mDNS instance name (default: fieldsync on <hostname>)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.InitializeWithFile(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	if cfg.CaptureDir != "" {
		if info, err := os.Stat(cfg.CaptureDir); err == nil && !info.IsDir() {
			return fmt.Errorf("capture path is not a directory: %s", cfg.CaptureDir)
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		logging.Error("Server stopped with error", zap.Error(err))
		return err
	}
	return nil
}

// loadConfig layers file, environment and explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.ServerConfig) {
	f := cmd.Flags()

	if f.Changed("host") {
		cfg.Host = host
	}
	if f.Changed("port") {
		cfg.Port = port
	}
	if f.Changed("cert") {
		cfg.CertPath = certPath
	}
	if f.Changed("key") {
		cfg.KeyPath = keyPath
	}
	if f.Changed("static-dir") {
		cfg.StaticDir = staticDir
	}
	if f.Changed("ws-path") {
		cfg.WSPath = wsPath
	}
	if f.Changed("queue-size") {
		cfg.QueueSize = queueSize
	}
	if f.Changed("idle-timeout") {
		cfg.IdleTimeout = idleTimeout
	}
	if f.Changed("max-message-size") {
		cfg.MaxMessageSize = maxMessageSize
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if f.Changed("capture-dir") {
		cfg.CaptureDir = captureDir
	}
	if f.Changed("advertise") {
		cfg.Advertise = advertise
	}
	if f.Changed("instance-name") {
		cfg.InstanceName = instanceName
	}
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fieldsync-server %s\n", version.Get())
	},
}
