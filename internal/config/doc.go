// Package config loads and saves the fieldsync server configuration.
//
// The configuration is a YAML document. Values are resolved in order:
// built-in defaults, the configuration file, environment variables
// (PORT, STATIC_PATH, FIELDSYNC_HOST), then command-line flags.
//
// # Configuration File Location
//
// The file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/fieldsync/server.yaml or $HOME/.config/fieldsync/server.yaml
//   - macOS: $HOME/.config/fieldsync/server.yaml
//   - Windows: %LOCALAPPDATA%\fieldsync\server.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.ApplyEnv(); err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
