// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rig

import (
	"context"
	"time"

	"github.com/Thermoquad/lumen/internal/logger"
	"github.com/Thermoquad/lumen/pkg/mavlink"
)

// Serve applies frames to the rig until ctx is done or frames closes,
// rendering after every change. Following strips are also re-rendered every
// interval so the vehicle color tracks state even without new frames.
func Serve(ctx context.Context, r *Rig, frames <-chan *mavlink.Frame, interval time.Duration, log *logger.Log, renderers ...Renderer) error {
	if log == nil {
		log = logger.Discard()
	}

	var refresh <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	render := func() {
		pixels := r.Pixels()
		for _, rd := range renderers {
			if err := rd.Render(pixels); err != nil {
				log.WithError(err).Warn("render failed")
			}
		}
	}

	render()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-refresh:
			render()

		case f, ok := <-frames:
			if !ok {
				return nil
			}
			changed, err := r.Handle(f)
			if err != nil {
				log.With(logger.Fields{
					"sysid":  f.Sender.SystemID,
					"compid": f.Sender.ComponentID,
				}).WithError(err).Warn("frame rejected")
				continue
			}
			if changed {
				render()
			}
		}
	}
}
