// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for realityctl.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the REALITYCTL_CONFIG environment variable.
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for realityctl.
type Config struct {
	// Service configures the managed systemd unit and the external
	// executables realityctl shells out to.
	Service ServiceConfig `yaml:"service"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Reality configures the desired Reality inbound parameters.
	Reality RealityConfig `yaml:"reality"`

	// Health configures the post-restart verification loop.
	Health HealthConfig `yaml:"health"`

	// Revisions configures the revision store.
	Revisions RevisionsConfig `yaml:"revisions"`
}

// ServiceConfig configures the managed service and external binaries.
type ServiceConfig struct {
	// Unit is the systemd unit name of the proxy service.
	// Default: xray
	Unit string `yaml:"unit"`

	// XrayBinary is the Xray executable, used for key generation and
	// config dry-run validation. Default: xray (found in PATH).
	XrayBinary string `yaml:"xray_binary"`

	// SystemctlBinary is the systemctl executable.
	// Default: /usr/bin/systemctl
	SystemctlBinary string `yaml:"systemctl_binary"`

	// JournalctlBinary is the journalctl executable.
	// Default: /usr/bin/journalctl
	JournalctlBinary string `yaml:"journalctl_binary"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// ActiveConfig is the live Xray config file.
	// Default: /usr/local/etc/xray/config.json
	ActiveConfig string `yaml:"active_config"`

	// StateDir holds the revision manifest, backups, and discarded
	// candidates. Default: /var/lib/realityctl
	StateDir string `yaml:"state_dir"`

	// EnvFile is the secondary credential store consumed by the bot.
	// Default: /opt/xray-bot/.env
	EnvFile string `yaml:"env_file"`

	// LockFile serializes reconcile runs.
	// Default: <state_dir>/reconcile.lock
	LockFile string `yaml:"lock_file"`
}

// ListenProfile describes one inbound variant.
type ListenProfile struct {
	// Port the inbound listens on.
	Port int `yaml:"port"`

	// Primary marks the main inbound. Exactly one profile must be
	// primary; any number of secondary fallback profiles may follow.
	Primary bool `yaml:"primary"`
}

// RealityConfig configures the desired Reality inbound parameters.
type RealityConfig struct {
	// Dest is the decoy TLS destination (host:port).
	// Default: www.google.com:443
	Dest string `yaml:"dest"`

	// ServerNames are the SNI values accepted by the inbound.
	ServerNames []string `yaml:"server_names"`

	// ServerIP is the public address written to the credential store
	// and used in client links.
	ServerIP string `yaml:"server_ip"`

	// Listen is the inbound listen address. Default: 0.0.0.0
	Listen string `yaml:"listen"`

	// ListenProfiles describes the inbound variants. Default: a
	// single primary profile on port 443.
	ListenProfiles []ListenProfile `yaml:"listen_profiles"`
}

// HealthConfig configures the post-restart verification loop.
type HealthConfig struct {
	// Attempts bounds the poll loop. Default: 3
	Attempts int `yaml:"attempts"`

	// BackoffSeconds is the fixed delay between poll attempts.
	// Default: 2
	BackoffSeconds int `yaml:"backoff_seconds"`

	// TimeoutSeconds bounds the whole restart-and-verify sequence.
	// Default: 30
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RevisionsConfig configures the revision store.
type RevisionsConfig struct {
	// RetainBackups is how many backup generations to keep. Pruning
	// happens after a rollback or a successful apply, never during
	// the apply critical path. Default: 5
	RetainBackups int `yaml:"retain_backups"`
}

// Default returns the default configuration, matching the layout of
// the deployment the bot expects. The config file overrides these.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Unit:             "xray",
			XrayBinary:       "xray",
			SystemctlBinary:  "/usr/bin/systemctl",
			JournalctlBinary: "/usr/bin/journalctl",
		},
		Paths: PathsConfig{
			ActiveConfig: "/usr/local/etc/xray/config.json",
			StateDir:     "/var/lib/realityctl",
			EnvFile:      "/opt/xray-bot/.env",
		},
		Reality: RealityConfig{
			Dest:           "www.google.com:443",
			ServerNames:    []string{"www.google.com"},
			Listen:         "0.0.0.0",
			ListenProfiles: []ListenProfile{{Port: 443, Primary: true}},
		},
		Health: HealthConfig{
			Attempts:       3,
			BackoffSeconds: 2,
			TimeoutSeconds: 30,
		},
		Revisions: RevisionsConfig{
			RetainBackups: 5,
		},
	}
}

// Load loads configuration from the given path, or from the
// REALITYCTL_CONFIG environment variable when path is empty. There are
// no other fallbacks.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REALITYCTL_CONFIG")
	}
	if path == "" {
		return nil, fmt.Errorf("no config file: set REALITYCTL_CONFIG or pass --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override individual values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.Paths.LockFile == "" {
		cfg.Paths.LockFile = filepath.Join(cfg.Paths.StateDir, "reconcile.lock")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Service.Unit == "" {
		return fmt.Errorf("service.unit must not be empty")
	}
	if c.Paths.ActiveConfig == "" {
		return fmt.Errorf("paths.active_config must not be empty")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir must not be empty")
	}

	if err := validateDest(c.Reality.Dest); err != nil {
		return err
	}
	if len(c.Reality.ServerNames) == 0 {
		return fmt.Errorf("reality.server_names must list at least one SNI")
	}

	primaries := 0
	for i, profile := range c.Reality.ListenProfiles {
		if profile.Port < 1 || profile.Port > 65535 {
			return fmt.Errorf("reality.listen_profiles[%d].port %d out of range", i, profile.Port)
		}
		if profile.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("reality.listen_profiles must have exactly one primary profile, got %d", primaries)
	}

	if c.Health.Attempts < 1 {
		return fmt.Errorf("health.attempts must be at least 1")
	}
	if c.Health.BackoffSeconds < 0 || c.Health.TimeoutSeconds < 1 {
		return fmt.Errorf("health.backoff_seconds and health.timeout_seconds must be positive")
	}
	if c.Revisions.RetainBackups < 1 {
		return fmt.Errorf("revisions.retain_backups must be at least 1")
	}
	return nil
}

// validateDest checks that dest is a host:port pair with a numeric
// port, the form Xray accepts for realitySettings.dest.
func validateDest(dest string) error {
	host, portString, err := net.SplitHostPort(dest)
	if err != nil || host == "" {
		return fmt.Errorf("reality.dest %q must be host:port", dest)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("reality.dest %q has invalid port", dest)
	}
	return nil
}

// DestSNI returns the host part of Dest, the default SNI for client
// links.
func (c *RealityConfig) DestSNI() string {
	host, _, err := net.SplitHostPort(c.Dest)
	if err != nil {
		return strings.Split(c.Dest, ":")[0]
	}
	return host
}

// Ports returns the listen profile ports in declaration order.
func (c *RealityConfig) Ports() []int {
	ports := make([]int, 0, len(c.ListenProfiles))
	for _, profile := range c.ListenProfiles {
		ports = append(ports, profile.Port)
	}
	return ports
}
