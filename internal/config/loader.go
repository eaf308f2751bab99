package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions returns an error if a config file has any
// group or world permission bit set (mode & 0077). Config files may name
// the peer's network topology. A file that cannot be stat'ed passes this
// check; the caller reports the access error.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and validates a ServerConfig from a YAML file.
func Load(path string) (*ServerConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade sentryfabd", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a ServerConfig loaded from disk. CLI flags are applied
// after Load and are not subject to this validation — only the file's own
// role/port fields, when present, must be well-formed.
func Validate(cfg *ServerConfig) error {
	if cfg.Role != "" {
		if _, err := cfg.RoleValue(); err != nil {
			return err
		}
	}
	if cfg.P2PPort != 0 && (cfg.P2PPort < 1 || cfg.P2PPort > 65535) {
		return fmt.Errorf("config: p2p_port %d out of range", cfg.P2PPort)
	}
	if cfg.ClientPort != 0 && (cfg.ClientPort < 1 || cfg.ClientPort > 65535) {
		return fmt.Errorf("config: client_listen_port %d out of range", cfg.ClientPort)
	}
	if cfg.CheckAlertTimeout < 0 {
		return fmt.Errorf("config: checkalert_timeout must not be negative")
	}
	if cfg.ListenBacklog < 0 {
		return fmt.Errorf("config: listen_backlog must not be negative")
	}
	return nil
}
