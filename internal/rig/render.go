// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rig

import (
	"fmt"

	"github.com/Thermoquad/lumen/pkg/lights"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// Renderer shows rig pixels somewhere
type Renderer interface {
	Render(strips [][]lights.Color) error
	Close() error
}

// SPIRenderer drives a chain of NRZ LEDs (WS2812 and friends) over SPI.
// Strips are laid out back to back along the chain.
type SPIRenderer struct {
	dev    *nrzled.Dev
	port   spi.PortCloser
	pixels int
	buf    []byte
}

// OpenSPI initialises the host drivers and opens the named SPI port.
// An empty port name opens the first port found.
func OpenSPI(portName string, pixels int, freq physic.Frequency) (*SPIRenderer, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", portName, err)
	}

	r, err := NewSPIRenderer(port, pixels, freq)
	if err != nil {
		port.Close()
		return nil, err
	}
	return r, nil
}

// NewSPIRenderer wraps an already opened SPI port
func NewSPIRenderer(port spi.PortCloser, pixels int, freq physic.Frequency) (*SPIRenderer, error) {
	opts := nrzled.Opts{
		NumPixels: pixels,
		Channels:  3,
		Freq:      freq,
	}

	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up LED chain: %w", err)
	}

	return &SPIRenderer{
		dev:    dev,
		port:   port,
		pixels: pixels,
		buf:    make([]byte, pixels*3),
	}, nil
}

// Render writes every strip to the chain. Pixels past the chain length are
// dropped; a short frame leaves the tail dark.
func (r *SPIRenderer) Render(strips [][]lights.Color) error {
	PackRGB(r.buf, strips)
	if _, err := r.dev.Write(r.buf); err != nil {
		return fmt.Errorf("SPI write failed: %w", err)
	}
	return nil
}

// Close blanks the chain and releases the port
func (r *SPIRenderer) Close() error {
	haltErr := r.dev.Halt()
	if err := r.port.Close(); err != nil {
		return err
	}
	return haltErr
}

// PackRGB flattens strips into raw RGB bytes, filling dst and zeroing
// whatever the strips do not cover
func PackRGB(dst []byte, strips [][]lights.Color) {
	clear(dst)
	i := 0
	for _, strip := range strips {
		for _, c := range strip {
			if i+3 > len(dst) {
				return
			}
			dst[i] = byte(c >> 16)
			dst[i+1] = byte(c >> 8)
			dst[i+2] = byte(c)
			i += 3
		}
	}
}
