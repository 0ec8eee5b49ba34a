package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the configuration file format version.
const CurrentVersion = 1

// Environment variables consulted by ApplyEnv.
const (
	EnvPort       = "PORT"
	EnvStaticPath = "STATIC_PATH"
	EnvHost       = "FIELDSYNC_HOST"
)

// Defaults.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8080
	DefaultStaticDir      = "dist"
	DefaultWSPath         = "/ws"
	DefaultQueueSize      = 1000
	DefaultMaxMessageSize = 64 * 1024
	DefaultLogLevel       = "info"
)

// maxMessageSizeLimit caps max_message_size so a single frame cannot
// exhaust memory.
const maxMessageSizeLimit = 16 * 1024 * 1024

// fileMutex serializes Save calls within the process.
var fileMutex sync.Mutex

// ServerConfig is the on-disk server configuration.
type ServerConfig struct {
	Version        int           `yaml:"version"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CertPath       string        `yaml:"cert,omitempty"` // PEM certificate; TLS is enabled when set with key
	KeyPath        string        `yaml:"key,omitempty"`  // PEM private key
	StaticDir      string        `yaml:"static_dir"`
	WSPath         string        `yaml:"ws_path"`
	QueueSize      int           `yaml:"queue_size"`             // per-subscriber broadcast queue
	IdleTimeout    time.Duration `yaml:"idle_timeout,omitempty"` // 0 disables
	MaxMessageSize int           `yaml:"max_message_size"`
	CaptureDir     string        `yaml:"capture_dir,omitempty"` // frame capture is off when empty
	Advertise      bool          `yaml:"advertise"`             // mDNS
	InstanceName   string        `yaml:"instance_name,omitempty"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *ServerConfig {
	return &ServerConfig{
		Version:        CurrentVersion,
		Host:           DefaultHost,
		Port:           DefaultPort,
		StaticDir:      DefaultStaticDir,
		WSPath:         DefaultWSPath,
		QueueSize:      DefaultQueueSize,
		MaxMessageSize: DefaultMaxMessageSize,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the configuration at path, or at DefaultPath when path is
// empty. A missing file yields Default(). Keys absent from the file keep
// their default values.
func Load(path string) (*ServerConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *ServerConfig) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv(EnvStaticPath); ok && v != "" {
		c.StaticDir = v
	}
	if v, ok := os.LookupEnv(EnvHost); ok && v != "" {
		c.Host = v
	}
	return nil
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.CertPath != "" && c.KeyPath != ""
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values the server cannot run with.
// All problems are reported together.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range (0-65535)", c.Port))
	}
	if (c.CertPath == "") != (c.KeyPath == "") {
		errs = append(errs, errors.New("cert and key must be set together"))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws_path %q must start with /", c.WSPath))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > maxMessageSizeLimit {
		errs = append(errs, fmt.Errorf("max_message_size must be between 1 and %d, got %d", maxMessageSizeLimit, c.MaxMessageSize))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must not be negative, got %s", c.IdleTimeout))
	}
	if c.StaticDir == "" {
		errs = append(errs, errors.New("static_dir is required"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to path atomically, creating the directory
// if needed.
func (c *ServerConfig) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# fieldsync server configuration\n#\n# Location: " + path + "\n\n")
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
