// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/lumen/internal/framelog"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	"github.com/spf13/cobra"
)

var (
	replaySpeed    float64
	replayInbound  bool
	replayRetarget bool
	replayDryRun   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Resend LED frames from a recording",
	Long: `Read a CBOR frame log written with --record and send its LED_STRIP_CONFIG
frames again, in order, with the original pacing scaled by --speed.

Sequence numbers and the sender address are those of this session; the
target is kept unless --retarget is set. --dry-run only prints the frames.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Pacing multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayInbound, "inbound", false, "Replay frames that were received instead of sent")
	replayCmd.Flags().BoolVar(&replayRetarget, "retarget", false, "Address frames to the current target")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Print frames without connecting")
}

func runReplay(cmd *cobra.Command, args []string) error {
	r, err := framelog.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	dir := framelog.Outbound
	if replayInbound {
		dir = framelog.Inbound
	}

	entries, skipped, err := framelog.ReadFrames(r, dir)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warnf("skipped %d undecodable records", skipped)
	}

	var leds []framelog.Entry
	for _, e := range entries {
		if _, ok := e.Frame.Message.(*mavlink.LEDStripConfig); ok {
			leds = append(leds, e)
		}
	}
	log.Infof("%d LED frames to replay", len(leds))

	if replayDryRun {
		for _, e := range leds {
			fmt.Print(mavlink.FormatFrame(e.Frame))
		}
		return nil
	}

	ctx := cmd.Context()
	s, l, err := connectLights(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var prev time.Time
	for i, e := range leds {
		if i > 0 && replaySpeed > 0 {
			gap := time.Duration(float64(e.Time().Sub(prev)) / replaySpeed)
			if gap > 0 && !sleep(ctx, gap) {
				return nil
			}
		}
		prev = e.Time()

		msg := *e.Frame.Message.(*mavlink.LEDStripConfig)
		if replayRetarget {
			target := l.Target()
			msg.TargetSystem = target.SystemID
			msg.TargetComponent = target.ComponentID
		}

		err := s.QueueMessage(func(sender mavlink.Address, _ uint8) *mavlink.Frame {
			return mavlink.NewFrame(sender, &msg)
		})
		if err != nil {
			return reportDispatch(fmt.Sprintf("replay frame %d", i), fmt.Errorf("%w: %w", lights.ErrConnection, err))
		}
	}

	return reportDispatch(fmt.Sprintf("replay of %d frames", len(leds)), nil)
}
