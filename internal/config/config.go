// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the lumen configuration file
type Config struct {
	Connection ConnectionConf `toml:"connection"`
	Identity   IdentityConf   `toml:"identity"`
	Target     TargetConf     `toml:"target"`
	Rig        RigConf        `toml:"rig"`
	Log        LogConf        `toml:"log"`
	Colormap   string         `toml:"colormap"` // Colormap - path to the color table file.
}

// ConnectionConf configures the vehicle link.
type ConnectionConf struct {
	URL               string   `toml:"url"`                // URL - serial://, udp://, udpout://, tcp://, ws://, wss:// or mqtt://
	Username          string   `toml:"username"`           // Username - HTTP Basic auth user for ws:// and wss://, or MQTT user.
	NoSSLVerify       bool     `toml:"no-ssl-verify"`      // NoSSLVerify - skip TLS verification for wss://.
	SendTimeout       Duration `toml:"send-timeout"`       // SendTimeout - how long a frame may wait in the outbound queue.
	HeartbeatInterval Duration `toml:"heartbeat-interval"` // HeartbeatInterval - own heartbeat period, 0 disables.
	DiscoveryTimeout  Duration `toml:"discovery-timeout"`  // DiscoveryTimeout - how long to wait for the autopilot.
}

// IdentityConf is this endpoint's MAVLink address.
type IdentityConf struct {
	SystemID    uint8 `toml:"system-id"`
	ComponentID uint8 `toml:"component-id"`
}

// TargetConf addresses the rig. SystemID 0 means "the first autopilot heard".
type TargetConf struct {
	SystemID    uint8 `toml:"system-id"`
	ComponentID uint8 `toml:"component-id"`
}

// RigConf describes the rig layout, and the simulator's identity.
type RigConf struct {
	Strips         int      `toml:"strips"`
	PixelsPerStrip int      `toml:"pixels-per-strip"`
	Interval       Duration `toml:"interval"` // Interval - demo cycle period.
	SystemID       uint8    `toml:"system-id"`
	ComponentID    uint8    `toml:"component-id"`
	SPIPort        string   `toml:"spi-port"`     // SPIPort - periph SPI port name, empty for the first one.
	SPIFrequency   int64    `toml:"spi-freq-khz"` // SPIFrequency - WS281x bit clock in kHz.
	FollowColor    uint32   `toml:"follow-color"` // FollowColor - color shown while following vehicle mode.
}

// LogConf configures the logger.
type LogConf struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("5s") in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Connection: ConnectionConf{
			SendTimeout:       Duration{time.Second},
			HeartbeatInterval: Duration{time.Second},
			DiscoveryTimeout:  Duration{3 * time.Second},
		},
		Identity: IdentityConf{
			SystemID:    1,
			ComponentID: 135,
		},
		Target: TargetConf{
			ComponentID: 1,
		},
		Rig: RigConf{
			Strips:         4,
			PixelsPerStrip: 20,
			Interval:       Duration{5 * time.Second},
			SystemID:       1,
			ComponentID:    1,
			SPIFrequency:   2500,
			FollowColor:    0x202020,
		},
		Log: LogConf{
			Level: "info",
		},
		Colormap: "colormap.txt",
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would produce unaddressable frames
func (c *Config) Validate() error {
	if c.Identity.SystemID == 0 {
		return fmt.Errorf("identity.system-id must not be 0")
	}
	if c.Rig.Strips < 0 || c.Rig.Strips > 256 {
		return fmt.Errorf("rig.strips=%d out of range (0-256)", c.Rig.Strips)
	}
	if c.Rig.PixelsPerStrip < 0 || c.Rig.PixelsPerStrip > 256 {
		return fmt.Errorf("rig.pixels-per-strip=%d out of range (0-256)", c.Rig.PixelsPerStrip)
	}
	if c.Connection.SendTimeout.Duration <= 0 {
		return fmt.Errorf("connection.send-timeout must be positive")
	}
	return nil
}
