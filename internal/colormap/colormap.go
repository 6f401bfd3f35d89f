// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package colormap loads name to color tables. Each line of a table reads
// "<hex-color> <name>"; lines that do not parse are skipped.
package colormap

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Thermoquad/lumen/pkg/lights"
)

// Colormap maps color names to colors
type Colormap struct {
	colors map[string]lights.Color
	names  []string // sorted
}

// Entry is one named color
type Entry struct {
	Name  string
	Color lights.Color
}

// Load reads a color table file
func Load(path string) (*Colormap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open colormap: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a color table. Later duplicates override earlier ones.
func Parse(r io.Reader) (*Colormap, error) {
	cm := &Colormap{colors: make(map[string]lights.Color)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hex, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		c, err := ParseColor(hex)
		if err != nil || name == "" {
			continue
		}
		cm.colors[name] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read colormap: %w", err)
	}

	cm.names = make([]string, 0, len(cm.colors))
	for name := range cm.colors {
		cm.names = append(cm.names, name)
	}
	slices.Sort(cm.names)

	return cm, nil
}

// ParseColor parses a hex color with optional "0x" or "#" prefix
func ParseColor(s string) (lights.Color, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "#"), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return lights.Color(v), nil
}

// Len returns the number of named colors
func (cm *Colormap) Len() int {
	return len(cm.names)
}

// Lookup returns the color with the given name
func (cm *Colormap) Lookup(name string) (lights.Color, bool) {
	c, ok := cm.colors[name]
	return c, ok
}

// Resolve accepts either a color name or a hex color
func (cm *Colormap) Resolve(s string) (lights.Color, error) {
	if cm != nil {
		if c, ok := cm.colors[s]; ok {
			return c, nil
		}
	}
	return ParseColor(s)
}

// Entries returns all colors sorted by name
func (cm *Colormap) Entries() []Entry {
	entries := make([]Entry, len(cm.names))
	for i, name := range cm.names {
		entries[i] = Entry{Name: name, Color: cm.colors[name]}
	}
	return entries
}

// Random picks a color uniformly, in name order, using rng.
func (cm *Colormap) Random(rng *rand.Rand) (Entry, error) {
	if len(cm.names) == 0 {
		return Entry{}, fmt.Errorf("colormap is empty")
	}
	name := cm.names[rng.IntN(len(cm.names))]
	return Entry{Name: name, Color: cm.colors[name]}, nil
}
