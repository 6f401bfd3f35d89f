// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Connection flags
	connURL     string
	username    string
	noSSLVerify bool

	// Identity and addressing flags
	systemID        uint8
	componentID     uint8
	targetSystem    uint8
	targetComponent uint8

	logLevel     string
	colormapPath string
	recordPath   string

	// Loaded in PersistentPreRunE
	cfg *config.Config
	log *logger.Log
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "MAVLink LED rig control",
	Long: `Lumen - A CLI tool for driving a vehicle-mounted LED rig over MAVLink.

Colors are sent as LED_STRIP_CONFIG frames, at most eight LEDs per frame.
The rig can also be handed back to vehicle-state lighting (follow mode).

Connection URLs:
  serial:///dev/ttyUSB0[:57600]
  udp://:14550            listen, reply to the last peer heard
  udpout://host:14550
  tcp://host:5760
  ws://host/path, wss://host/path
  mqtt://broker:1883/topic

For WebSocket and MQTT authentication, the password is read from the
LUMEN_PASSWORD environment variable, or prompted interactively if not set.
The --password flag is intentionally not provided to avoid leaking
credentials in shell history.

Settings can also come from a TOML file (--config); flags win over the file.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfgFile, "config", "c", "", "TOML configuration file")

	// Connection flags
	flags.StringVarP(&connURL, "url", "u", "", "Connection URL (serial, udp, udpout, tcp, ws, wss, mqtt)")
	flags.StringVar(&username, "username", "", "Username for WebSocket Basic auth or MQTT")
	flags.BoolVar(&noSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Addressing flags
	flags.Uint8Var(&systemID, "sysid", 1, "Own MAVLink system id")
	flags.Uint8Var(&componentID, "compid", 135, "Own MAVLink component id")
	flags.Uint8Var(&targetSystem, "target-sysid", 0, "Rig system id (0 = first autopilot heard)")
	flags.Uint8Var(&targetComponent, "target-compid", 1, "Rig component id")

	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&colormapPath, "colormap", "colormap.txt", "Color table file")
	flags.StringVar(&recordPath, "record", "", "Record every frame on the link to a CBOR file")
}

// loadConfig reads the config file and applies explicitly set flags over it
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		c.Connection.URL = connURL
	}
	if flags.Changed("username") {
		c.Connection.Username = username
	}
	if flags.Changed("no-ssl-verify") {
		c.Connection.NoSSLVerify = noSSLVerify
	}
	if flags.Changed("sysid") {
		c.Identity.SystemID = systemID
	}
	if flags.Changed("compid") {
		c.Identity.ComponentID = componentID
	}
	if flags.Changed("target-sysid") {
		c.Target.SystemID = targetSystem
	}
	if flags.Changed("target-compid") {
		c.Target.ComponentID = targetComponent
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("colormap") {
		c.Colormap = colormapPath
	}

	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logger.New(c.Log.Level)
	if err != nil {
		return err
	}

	cfg = c
	log = l.With(logger.Fields{"cmd": cmd.Name()})
	return nil
}

// Execute runs the root command. Ctrl+C cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
