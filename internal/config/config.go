// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the TOML configuration of the postman binaries.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration.
type Config struct {
	Log   LogConfig   `toml:"log"`
	Hub   HubConfig   `toml:"hub"`
	Agent AgentConfig `toml:"agent"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level"`
	// Format: console or json
	Format string `toml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `toml:"outputs"`
	Development bool           `toml:"development"`
	Rotation    RotationConfig `toml:"rotation"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `toml:"enable"`
	Filename   string `toml:"filename"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// HubConfig configures the gRPC relay.
type HubConfig struct {
	Addr string `toml:"addr"`
}

// AgentConfig configures a process attached to a transport as one endpoint.
type AgentConfig struct {
	Endpoint  string `toml:"endpoint"`
	Origin    string `toml:"origin"`
	Transport string `toml:"transport"`
	Codec     string `toml:"codec"`
	// TimeoutMs is the default call timeout; 0 disables it.
	TimeoutMs  int64        `toml:"timeout_ms"`
	BridgeAddr string       `toml:"bridge_addr"`
	Peers      []PeerConfig `toml:"peers"`
}

// PeerConfig binds one client to a remote endpoint.
type PeerConfig struct {
	Endpoint string `toml:"endpoint"`
	Origin   string `toml:"origin"`
	// TimeoutMs overrides the agent timeout when set; 0 disables it.
	TimeoutMs *int64 `toml:"timeout_ms"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/postman.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
		Hub: HubConfig{
			Addr: "127.0.0.1:7700",
		},
		Agent: AgentConfig{
			Origin:     "*",
			Transport:  "grpc://127.0.0.1:7700",
			Codec:      "json",
			TimeoutMs:  10000,
			BridgeAddr: "127.0.0.1:7780",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields every command relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Hub.Addr) == "" {
		return fmt.Errorf("hub.addr is required")
	}
	if c.Agent.TimeoutMs < 0 {
		return fmt.Errorf("agent.timeout_ms must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Agent.Peers))
	for i, p := range c.Agent.Peers {
		ep := strings.TrimSpace(p.Endpoint)
		if ep == "" {
			return fmt.Errorf("agent.peers[%d]: endpoint is required", i)
		}
		if _, dup := seen[ep]; dup {
			return fmt.Errorf("agent.peers[%d]: endpoint %q listed twice", i, ep)
		}
		seen[ep] = struct{}{}
		if p.TimeoutMs != nil && *p.TimeoutMs < 0 {
			return fmt.Errorf("agent.peers[%d]: timeout_ms must not be negative", i)
		}
	}
	return nil
}

// Timeout returns the agent default call timeout.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// Timeout returns the peer timeout, falling back to def when unset.
func (p PeerConfig) Timeout(def time.Duration) time.Duration {
	if p.TimeoutMs == nil {
		return def
	}
	return time.Duration(*p.TimeoutMs) * time.Millisecond
}
