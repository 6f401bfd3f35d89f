// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var followDisable bool

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Hand the rig back to vehicle-state lighting",
	Long: `Switch the rig to follow vehicle mode, so it shows the vehicle's state.

--disable sends nothing: the next set-strip or set-matrix takes the rig out
of follow mode.`,
	Args: cobra.NoArgs,
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
	followCmd.Flags().BoolVar(&followDisable, "disable", false, "Leave follow mode (no frame is sent)")
}

func runFollow(cmd *cobra.Command, args []string) error {
	if followDisable {
		log.Info("follow mode is left by the next color update; nothing sent")
		return nil
	}

	s, l, err := connectLights(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	return reportDispatch("follow vehicle mode", l.FollowVehicleMode(true))
}
