// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Thermoquad/lumen/internal/colormap"
	"github.com/Thermoquad/lumen/internal/rig"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/spf13/cobra"
)

var (
	matrixStrips int
	matrixPixels int
	matrixColor  string
	matrixSeed   uint64
)

var setMatrixCmd = &cobra.Command{
	Use:   "set-matrix",
	Short: "Set every strip of the rig",
	Long: `Send a full matrix to the rig, strip 0 first.

With --color every strip gets that color; otherwise each strip gets a
random color from the color table.`,
	Args: cobra.NoArgs,
	RunE: runSetMatrix,
}

func init() {
	rootCmd.AddCommand(setMatrixCmd)
	addLayoutFlags(setMatrixCmd, &matrixStrips, &matrixPixels)
	setMatrixCmd.Flags().StringVar(&matrixColor, "color", "", "Color for every strip (default random per strip)")
	setMatrixCmd.Flags().Uint64Var(&matrixSeed, "seed", 0, "Random seed (0 = time based)")
}

// addLayoutFlags registers --strips and --pixels, defaulting to the config
func addLayoutFlags(c *cobra.Command, strips, pixels *int) {
	c.Flags().IntVar(strips, "strips", 0, "Number of strips (default from config)")
	c.Flags().IntVar(pixels, "pixels", 0, "LEDs per strip (default from config)")
}

func layout(strips, pixels int) (int, int) {
	if strips == 0 {
		strips = cfg.Rig.Strips
	}
	if pixels == 0 {
		pixels = cfg.Rig.PixelsPerStrip
	}
	return strips, pixels
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// randomMatrix gives every strip one random color from the table
func randomMatrix(cm *colormap.Colormap, rng *rand.Rand, strips, pixels int) (lights.LightMatrix, []string, error) {
	matrix := lights.LightMatrix{Strips: make([]lights.LightStrip, strips)}
	names := make([]string, strips)
	for i := range matrix.Strips {
		entry, err := cm.Random(rng)
		if err != nil {
			return lights.LightMatrix{}, nil, err
		}
		matrix.Strips[i] = lights.UniformStrip(pixels, entry.Color)
		names[i] = entry.Name
	}
	return matrix, names, nil
}

func printMatrix(matrix lights.LightMatrix, names []string) {
	for i, strip := range matrix.Strips {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		fmt.Printf("Strip %3d %-16s %s\n", i, name, rig.Swatches(strip.Lights))
	}
}

func runSetMatrix(cmd *cobra.Command, args []string) error {
	strips, pixels := layout(matrixStrips, matrixPixels)

	var matrix lights.LightMatrix
	var names []string
	cm := loadColormap()

	if matrixColor != "" {
		c, err := cm.Resolve(matrixColor)
		if err != nil {
			return err
		}
		matrix.Strips = make([]lights.LightStrip, strips)
		names = make([]string, strips)
		for i := range matrix.Strips {
			matrix.Strips[i] = lights.UniformStrip(pixels, c)
			names[i] = matrixColor
		}
	} else {
		if cm == nil {
			return fmt.Errorf("random colors need a color table (%s)", cfg.Colormap)
		}
		var err error
		matrix, names, err = randomMatrix(cm, newRand(matrixSeed), strips, pixels)
		if err != nil {
			return err
		}
	}

	s, l, err := connectLights(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	printMatrix(matrix, names)
	return reportDispatch("matrix", l.SetMatrix(matrix))
}
