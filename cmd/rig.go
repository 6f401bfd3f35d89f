// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/lumen/internal/link"
	"github.com/Thermoquad/lumen/internal/logger"
	"github.com/Thermoquad/lumen/internal/rig"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
)

var (
	rigStrips  int
	rigPixels  int
	rigSPI     string
	rigPreview bool
)

var rigCmd = &cobra.Command{
	Use:   "rig",
	Short: "Simulate the vehicle-side LED rig",
	Long: `Act as the vehicle end of the link: announce an autopilot heartbeat, apply
LED_STRIP_CONFIG frames addressed to the rig, and show the result.

Output goes to a WS281x chain on SPI (--spi PORT, "auto" for the first port)
and/or a live terminal preview (--preview). With neither, changes are logged.

Over MQTT the rig reads the controller's tx topic and writes its rx topic.`,
	Args: cobra.NoArgs,
	RunE: runRig,
}

func init() {
	rootCmd.AddCommand(rigCmd)
	addLayoutFlags(rigCmd, &rigStrips, &rigPixels)
	rigCmd.Flags().StringVar(&rigSPI, "spi", "", `SPI port for a WS281x chain ("auto" for the first port)`)
	rigCmd.Flags().BoolVar(&rigPreview, "preview", false, "Show a live terminal preview")
}

// rigHeartbeat makes the rig discoverable as an autopilot
var rigHeartbeat = mavlink.Heartbeat{
	Type:           mavlink.TypeQuadrotor,
	Autopilot:      mavlink.AutopilotGeneric,
	SystemStatus:   mavlink.StateStandby,
	MavlinkVersion: mavlink.Version,
}

// logRenderer logs pixel changes when no other output is configured
type logRenderer struct {
	log *logger.Log
}

func (r logRenderer) Render(strips [][]lights.Color) error {
	for i, px := range strips {
		if len(px) == 0 {
			continue
		}
		r.log.With(logger.Fields{"strip": i}).Debugf("first=%06X last=%06X", uint32(px[0]), uint32(px[len(px)-1]))
	}
	return nil
}

func (r logRenderer) Close() error { return nil }

func runRig(cmd *cobra.Command, args []string) error {
	strips, pixels := layout(rigStrips, rigPixels)
	addr := mavlink.Address{SystemID: cfg.Rig.SystemID, ComponentID: cfg.Rig.ComponentID}

	r, err := rig.New(rig.Config{
		Address:        addr,
		Strips:         strips,
		PixelsPerStrip: pixels,
		FollowColor:    lights.Color(cfg.Rig.FollowColor),
	})
	if err != nil {
		return err
	}

	s, err := openSession(sessionParams{
		local:     addr,
		heartbeat: rigHeartbeat,
		role:      link.RoleVehicle,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	var renderers []rig.Renderer

	port := rigSPI
	if port == "" {
		port = cfg.Rig.SPIPort
	}
	if port != "" {
		if port == "auto" {
			port = ""
		}
		spiOut, err := rig.OpenSPI(port, strips*pixels, physic.Frequency(cfg.Rig.SPIFrequency)*physic.KiloHertz)
		if err != nil {
			return err
		}
		defer spiOut.Close()
		renderers = append(renderers, spiOut)
		log.Info("driving LED chain over SPI")
	}

	frames, unsubscribe := s.Subscribe(256)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	log.With(logger.Fields{
		"sysid":  addr.SystemID,
		"compid": addr.ComponentID,
		"strips": strips,
		"pixels": pixels,
	}).Info("rig ready")

	if !rigPreview {
		if len(renderers) == 0 {
			renderers = append(renderers, logRenderer{log: log})
		}
		err := rig.Serve(ctx, r, frames, cfg.Rig.Interval.Duration, log, renderers...)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	// The preview owns the terminal, so logs below warn level would garble it
	if log.Logger.IsLevelEnabled(logrus.InfoLevel) {
		log.Logger.SetLevel(logrus.WarnLevel)
	}

	p := tea.NewProgram(rig.NewPreview(r, s.ConnInfo(), s.Stats), tea.WithAltScreen(), tea.WithContext(ctx))
	renderers = append(renderers, rig.NewPreviewRenderer(p))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rig.Serve(ctx, r, frames, cfg.Rig.Interval.Duration, log, renderers...)
	}()

	_, runErr := p.Run()
	cancel()
	if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}
