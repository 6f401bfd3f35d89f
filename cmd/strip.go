// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/lumen/internal/colormap"
	"github.com/Thermoquad/lumen/internal/rig"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/spf13/cobra"
)

var (
	stripID     uint8
	stripColor  string
	stripCount  int
	stripColors []string
)

var setStripCmd = &cobra.Command{
	Use:   "set-strip",
	Short: "Set the colors of one strip",
	Long: `Send one strip's colors to the rig.

Either fill --count LEDs with a single --color, or give every LED its own
color with --colors. Colors are names from the color table or hex values
(RRGGBB, #RRGGBB or 0xRRGGBB).

Examples:
  lumen set-strip --strip 0 --color red --count 20
  lumen set-strip --strip 2 --colors ff0000,00ff00,0000ff`,
	Args: cobra.NoArgs,
	RunE: runSetStrip,
}

func init() {
	rootCmd.AddCommand(setStripCmd)
	setStripCmd.Flags().Uint8Var(&stripID, "strip", 0, "Strip index")
	setStripCmd.Flags().StringVar(&stripColor, "color", "", "Color for every LED")
	setStripCmd.Flags().IntVar(&stripCount, "count", 0, "Number of LEDs to fill with --color")
	setStripCmd.Flags().StringSliceVar(&stripColors, "colors", nil, "Comma separated color per LED")
	setStripCmd.MarkFlagsMutuallyExclusive("color", "colors")
	setStripCmd.MarkFlagsOneRequired("color", "colors")
}

// loadColormap reads the color table, tolerating a missing file when only
// hex colors are used
func loadColormap() *colormap.Colormap {
	cm, err := colormap.Load(cfg.Colormap)
	if err != nil {
		log.WithError(err).Debug("color table not loaded, only hex colors available")
		return nil
	}
	return cm
}

// buildStrip turns --color/--count or --colors into a strip
func buildStrip(cm *colormap.Colormap) (lights.LightStrip, error) {
	if len(stripColors) > 0 {
		strip := lights.LightStrip{Lights: make([]lights.Color, len(stripColors))}
		for i, s := range stripColors {
			c, err := cm.Resolve(strings.TrimSpace(s))
			if err != nil {
				return lights.LightStrip{}, fmt.Errorf("LED %d: %w", i, err)
			}
			strip.Lights[i] = c
		}
		return strip, nil
	}

	if stripCount <= 0 {
		return lights.LightStrip{}, fmt.Errorf("--color needs --count of at least 1")
	}
	c, err := cm.Resolve(stripColor)
	if err != nil {
		return lights.LightStrip{}, err
	}
	return lights.UniformStrip(stripCount, c), nil
}

func runSetStrip(cmd *cobra.Command, args []string) error {
	strip, err := buildStrip(loadColormap())
	if err != nil {
		return err
	}

	s, l, err := connectLights(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Strip %d: %s\n", stripID, rig.Swatches(strip.Lights))
	return reportDispatch(fmt.Sprintf("strip %d", stripID), l.SetStrip(stripID, strip))
}
