// Package config holds the CLI configuration types and the TOML loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Mode represents the user's chosen run mode.
type Mode string

const (
	ModeSim  Mode = "sim"  // in-process simulation over an in-memory hub
	ModeChat Mode = "chat" // interactive chat over a relay field
)

// Config stores all parameters gathered from CLI flags or a TOML file.
type Config struct {
	Mode     Mode
	Name     string // local peer name
	Field    string // slot field name on the relay
	RelayURL string // Chat: ws:// URL of the relay server

	TickInterval time.Duration // scheduler tick period
	PollInterval time.Duration // receive poll throttle; 0 polls every tick

	Reliable       bool          // send with the ack/resend loop
	RequireAcks    int           // confirming peers per reliable send
	AckTimeout     time.Duration // reliable send deadline
	ResendInterval time.Duration // retransmission cadence
	Loopback       bool          // deliver own messages locally
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Mode:         ModeSim,
		Field:        "slotcast",
		TickInterval: 50 * time.Millisecond,
	}
}

// fileConfig maps config.toml keys onto Config fields.
type fileConfig struct {
	Mode        string `toml:"mode"`
	Name        string `toml:"name"`
	Field       string `toml:"field"`
	RelayURL    string `toml:"relay_url"`
	TickMs      int    `toml:"tick_ms"`
	PollMs      int    `toml:"poll_ms"`
	Reliable    bool   `toml:"reliable"`
	RequireAcks int    `toml:"require_acks"`
	AckMs       int    `toml:"ack_timeout_ms"`
	ResendMs    int    `toml:"resend_ms"`
	Loopback    bool   `toml:"loopback"`
}

// Load reads a TOML file and overlays it on the defaults. Only keys present
// in the file override; everything else keeps its default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("mode") {
		cfg.Mode = Mode(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("field") {
		cfg.Field = strings.TrimSpace(raw.Field)
	}
	if meta.IsDefined("relay_url") {
		cfg.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("tick_ms") {
		cfg.TickInterval = time.Duration(raw.TickMs) * time.Millisecond
	}
	if meta.IsDefined("poll_ms") {
		cfg.PollInterval = time.Duration(raw.PollMs) * time.Millisecond
	}
	if meta.IsDefined("reliable") {
		cfg.Reliable = raw.Reliable
	}
	if meta.IsDefined("require_acks") {
		cfg.RequireAcks = raw.RequireAcks
	}
	if meta.IsDefined("ack_timeout_ms") {
		cfg.AckTimeout = time.Duration(raw.AckMs) * time.Millisecond
	}
	if meta.IsDefined("resend_ms") {
		cfg.ResendInterval = time.Duration(raw.ResendMs) * time.Millisecond
	}
	if meta.IsDefined("loopback") {
		cfg.Loopback = raw.Loopback
	}

	return cfg, cfg.validate()
}

// validate rejects configurations that cannot run.
func (c Config) validate() error {
	switch c.Mode {
	case ModeSim, ModeChat:
	default:
		return fmt.Errorf("load config: unknown mode %q (expected sim or chat)", c.Mode)
	}
	if c.Mode == ModeChat && c.RelayURL == "" {
		return fmt.Errorf("load config: relay_url is required in chat mode")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("load config: tick_ms must be positive")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("load config: poll_ms must not be negative")
	}
	return nil
}
