// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/lumen/pkg/mavlink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	monitorStatsInterval time.Duration
	monitorQuiet         bool
	monitorTUI           bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display inbound frames in human-readable format",
	Long: `Continuously decode and display MAVLink frames as they arrive.

Each frame is shown with timestamp, message name and decoded fields.
LED_STRIP_CONFIG frames are also checked for anomalies (bad counts, non-zero
padding, index overflow). Statistics are printed periodically.

Use --tui for a live dashboard with statistics, the last vehicle state,
the last LED frame and a log of recent events.

Use --record to keep a CBOR log for lumen replay.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 10*time.Second, "Statistics period (0 disables)")
	monitorCmd.Flags().BoolVarP(&monitorQuiet, "quiet", "q", false, "Only print anomalies and statistics")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Show a live dashboard instead of a frame log")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, err := openSession(groundParams())
	if err != nil {
		return err
	}
	defer s.Close()

	if monitorTUI {
		return runMonitorTUI(cmd, s)
	}

	fmt.Printf("Lumen - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	frames, unsubscribe := s.Subscribe(256)
	defer unsubscribe()

	var statsTick <-chan time.Time
	if monitorStatsInterval > 0 {
		ticker := time.NewTicker(monitorStatsInterval)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			stats := s.Stats()
			fmt.Printf("\n%s", stats.String())
			return nil

		case <-statsTick:
			stats := s.Stats()
			fmt.Printf("\n%s\n", stats.String())

		case f, ok := <-frames:
			if !ok {
				log.Info("connection closed")
				return nil
			}
			if !monitorQuiet {
				fmt.Print(mavlink.FormatFrame(f))
			}
			for _, anomaly := range mavlink.ValidateFrame(f) {
				fmt.Printf("[ANOMALY] %s from %d/%d: %s\n",
					mavlink.FormatMessageName(f.MessageID()), f.Sender.SystemID, f.Sender.ComponentID, anomaly.Error())
			}
		}
	}
}

func runMonitorTUI(cmd *cobra.Command, s *openedSession) error {
	// The dashboard owns the terminal
	if log.Logger.IsLevelEnabled(logrus.InfoLevel) {
		log.Logger.SetLevel(logrus.WarnLevel)
	}

	frames, unsubscribe := s.Subscribe(256)
	defer unsubscribe()

	m := initialMonitorModel(s.ConnInfo(), s.Stats, !monitorQuiet)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	go func() {
		for f := range frames {
			p.Send(monitorFrameMsg{frame: f, anomalies: mavlink.ValidateFrame(f)})
		}
		p.Send(monitorClosedMsg{})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
