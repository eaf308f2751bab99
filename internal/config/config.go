// Package config implements an optional YAML configuration file for
// sentryfabd, layered underneath the four-positional-argument CLI of
// spec.md §6 rather than replacing it. The positional arguments always
// supply the role, peer address and ports, so cmd/sentryfabd validates the
// file's role, peer_host, p2p_port and client_listen_port but does not use
// them; checkalert_timeout, listen_backlog and telemetry have no CLI flag
// and come only from this file.
package config

import (
	"time"

	"github.com/sentryfab/sentryfab/internal/protocol"
)

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// ServerConfig is the unified on-disk configuration for sentryfabd.
type ServerConfig struct {
	Version int `yaml:"version,omitempty"`

	Role       string `yaml:"role"`               // "SS" or "SL"
	PeerHost   string `yaml:"peer_host"`           // peer_ip
	P2PPort    int    `yaml:"p2p_port"`
	ClientPort int    `yaml:"client_listen_port"`

	CheckAlertTimeout time.Duration `yaml:"checkalert_timeout,omitempty"`
	ListenBacklog     int           `yaml:"listen_backlog,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds observability settings. Both are disabled by
// default (opt-in), matching the teacher's relay/daemon telemetry stance.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure over loopback HTTP.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9090"
}

// AuditConfig controls structured audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RoleValue returns the parsed protocol.Role for cfg.Role.
func (c *ServerConfig) RoleValue() (protocol.Role, error) {
	switch c.Role {
	case "SS":
		return protocol.RoleStatus, nil
	case "SL":
		return protocol.RoleLocation, nil
	default:
		return 0, ErrInvalidRole
	}
}

// DefaultMetricsListenAddress is used when metrics are enabled without an
// explicit listen_address.
const DefaultMetricsListenAddress = "127.0.0.1:9090"
