// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "realityctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
reality:
  server_ip: 203.0.113.7
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Service.Unit != "xray" {
		t.Errorf("Unit = %q, want xray", cfg.Service.Unit)
	}
	if cfg.Paths.ActiveConfig != "/usr/local/etc/xray/config.json" {
		t.Errorf("ActiveConfig = %q", cfg.Paths.ActiveConfig)
	}
	if cfg.Paths.LockFile != "/var/lib/realityctl/reconcile.lock" {
		t.Errorf("LockFile = %q, want default under state dir", cfg.Paths.LockFile)
	}
	if cfg.Reality.ServerIP != "203.0.113.7" {
		t.Errorf("ServerIP = %q", cfg.Reality.ServerIP)
	}
	if cfg.Revisions.RetainBackups != 5 {
		t.Errorf("RetainBackups = %d, want 5", cfg.Revisions.RetainBackups)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
service:
  unit: xray-server
paths:
  active_config: /etc/xray/config.json
  state_dir: /tmp/realityctl-state
reality:
  dest: www.bing.com:443
  server_names: [www.bing.com, bing.com]
  listen_profiles:
    - port: 443
      primary: true
    - port: 8443
health:
  attempts: 5
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Service.Unit != "xray-server" {
		t.Errorf("Unit = %q", cfg.Service.Unit)
	}
	if got := cfg.Reality.Ports(); len(got) != 2 || got[0] != 443 || got[1] != 8443 {
		t.Errorf("Ports() = %v, want [443 8443]", got)
	}
	if cfg.Health.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", cfg.Health.Attempts)
	}
	if cfg.Reality.DestSNI() != "www.bing.com" {
		t.Errorf("DestSNI() = %q", cfg.Reality.DestSNI())
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no primary profile",
			mutate:  func(c *Config) { c.Reality.ListenProfiles = []ListenProfile{{Port: 443}} },
			wantErr: "exactly one primary",
		},
		{
			name: "two primary profiles",
			mutate: func(c *Config) {
				c.Reality.ListenProfiles = []ListenProfile{
					{Port: 443, Primary: true}, {Port: 8443, Primary: true},
				}
			},
			wantErr: "exactly one primary",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Reality.ListenProfiles[0].Port = 70000 },
			wantErr: "out of range",
		},
		{
			name:    "dest without port",
			mutate:  func(c *Config) { c.Reality.Dest = "www.google.com" },
			wantErr: "host:port",
		},
		{
			name:    "empty server names",
			mutate:  func(c *Config) { c.Reality.ServerNames = nil },
			wantErr: "server_names",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Health.Attempts = 0 },
			wantErr: "attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted bad config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithoutPathOrEnvFails(t *testing.T) {
	t.Setenv("REALITYCTL_CONFIG", "")
	if _, err := Load(""); err == nil {
		t.Fatal("Load succeeded without a config path")
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "reality:\n  server_ip: 198.51.100.4\n")
	t.Setenv("REALITYCTL_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reality.ServerIP != "198.51.100.4" {
		t.Errorf("ServerIP = %q", cfg.Reality.ServerIP)
	}
}
