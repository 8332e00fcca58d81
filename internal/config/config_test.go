// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postman.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[agent]
endpoint = "w"

[[agent.peers]]
endpoint = "x"
origin = "https://x.example"

[[agent.peers]]
endpoint = "y"
timeout_ms = 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.Addr != "127.0.0.1:7700" {
		t.Errorf("hub addr = %q", cfg.Hub.Addr)
	}
	if cfg.Agent.Endpoint != "w" || cfg.Agent.Codec != "json" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if got := cfg.Agent.Timeout(); got != 10*time.Second {
		t.Errorf("agent timeout = %s", got)
	}
	if len(cfg.Agent.Peers) != 2 {
		t.Fatalf("peers = %d, want 2", len(cfg.Agent.Peers))
	}
	if got := cfg.Agent.Peers[0].Timeout(cfg.Agent.Timeout()); got != 10*time.Second {
		t.Errorf("peer x timeout = %s, want agent default", got)
	}
	if got := cfg.Agent.Peers[1].Timeout(cfg.Agent.Timeout()); got != 0 {
		t.Errorf("peer y timeout = %s, want explicit zero", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty hub addr", "[hub]\naddr = \"\"\n", "hub.addr"},
		{"negative timeout", "[agent]\ntimeout_ms = -1\n", "timeout_ms"},
		{"peer without endpoint", "[[agent.peers]]\norigin = \"*\"\n", "endpoint is required"},
		{"duplicate peer", "[[agent.peers]]\nendpoint = \"x\"\n[[agent.peers]]\nendpoint = \"x\"\n", "listed twice"},
		{"bad toml", "[agent\n", "parse failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
