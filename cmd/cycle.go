// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	cycleStrips    int
	cyclePixels    int
	cycleInterval  time.Duration
	cycleSeed      uint64
	cycleKeepGoing bool
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Alternate random colors and follow mode",
	Long: `Demo loop: give every strip a random color from the color table, wait,
switch to follow vehicle mode, wait, and repeat until interrupted.

A failed update stops the loop unless --keep-going is set.`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	addLayoutFlags(cycleCmd, &cycleStrips, &cyclePixels)
	cycleCmd.Flags().DurationVar(&cycleInterval, "interval", 0, "Time between steps (default from config)")
	cycleCmd.Flags().Uint64Var(&cycleSeed, "seed", 0, "Random seed (0 = time based)")
	cycleCmd.Flags().BoolVar(&cycleKeepGoing, "keep-going", false, "Log failed updates and continue")
}

func runCycle(cmd *cobra.Command, args []string) error {
	strips, pixels := layout(cycleStrips, cyclePixels)
	interval := cycleInterval
	if interval == 0 {
		interval = cfg.Rig.Interval.Duration
	}

	cm := loadColormap()
	if cm == nil {
		return fmt.Errorf("cycle needs a color table (%s)", cfg.Colormap)
	}
	rng := newRand(cycleSeed)

	ctx := cmd.Context()
	s, l, err := connectLights(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	step := func(what string, err error) error {
		err = reportDispatch(what, err)
		if err != nil && cycleKeepGoing {
			return nil
		}
		return err
	}

	for {
		matrix, names, err := randomMatrix(cm, rng, strips, pixels)
		if err != nil {
			return err
		}
		printMatrix(matrix, names)
		fmt.Println()

		if err := step("matrix", l.SetMatrix(matrix)); err != nil {
			return err
		}
		if !sleep(ctx, interval) {
			return nil
		}

		if err := step("follow vehicle mode", l.FollowVehicleMode(true)); err != nil {
			return err
		}
		if !sleep(ctx, interval) {
			return nil
		}
	}
}

// sleep waits for d; false means ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.Canceled) {
			log.WithError(ctx.Err()).Warn("stopped")
		}
		return false
	case <-t.C:
		return true
	}
}
