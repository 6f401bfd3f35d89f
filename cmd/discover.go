// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/Thermoquad/lumen/internal/link"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	"github.com/spf13/cobra"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Wait for an autopilot heartbeat",
	Long: `Connect and wait for a HEARTBEAT from an autopilot until timeout, then list
every MAVLink system heard.

Exit codes:
  0 - Autopilot found before timeout
  1 - Timeout reached without an autopilot heartbeat
  2 - Connection error

Useful for checking the link before driving the rig.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "How long to wait (default from config)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	timeout := discoverTimeout
	if timeout == 0 {
		timeout = cfg.Connection.DiscoveryTimeout.Duration
	}

	s, err := openSession(groundParams())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Lumen - Discover\n")
	fmt.Printf("Connection: %s\n", s.ConnInfo())
	fmt.Printf("Timeout: %s\n", timeout)
	fmt.Printf("Waiting for autopilot heartbeat...\n\n")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	addr, err := s.WaitForAutopilot(ctx)
	systems := s.Systems()
	stats := s.Stats()
	s.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No autopilot heartbeat within %s\n", timeout)
		if len(systems) > 0 {
			printSystems(systems)
		}
		if stats.ErrorCount() > 0 {
			fmt.Fprintf(os.Stderr, "(%d frames failed to decode)\n", stats.ErrorCount())
		}
		os.Exit(1)
	}

	fmt.Printf("SUCCESS: Autopilot at system %d component %d\n\n", addr.SystemID, addr.ComponentID)
	printSystems(systems)
	os.Exit(0)
	return nil
}

func printSystems(systems []link.System) {
	slices.SortFunc(systems, func(a, b link.System) int {
		if a.Address.SystemID != b.Address.SystemID {
			return int(a.Address.SystemID) - int(b.Address.SystemID)
		}
		return int(a.Address.ComponentID) - int(b.Address.ComponentID)
	})

	fmt.Printf("Systems heard:\n")
	for _, sys := range systems {
		fmt.Printf("  [%3d:%3d] last seen %s\n%s", sys.Address.SystemID, sys.Address.ComponentID,
			sys.LastSeen.Format("15:04:05.000"), mavlink.FormatMessage(&sys.Heartbeat))
	}
}
