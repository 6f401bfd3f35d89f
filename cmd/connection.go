// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/lumen/internal/framelog"
	"github.com/Thermoquad/lumen/internal/link"
	"github.com/Thermoquad/lumen/internal/logger"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("LUMEN_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// groundHeartbeat is what the controlling side announces
var groundHeartbeat = mavlink.Heartbeat{
	Type:           mavlink.TypeGCS,
	Autopilot:      mavlink.AutopilotInvalid,
	SystemStatus:   mavlink.StateActive,
	MavlinkVersion: mavlink.Version,
}

// sessionParams varies between the ground commands and the rig simulator
type sessionParams struct {
	local     mavlink.Address
	heartbeat mavlink.Heartbeat
	role      link.Role
}

func groundParams() sessionParams {
	return sessionParams{
		local:     mavlink.Address{SystemID: cfg.Identity.SystemID, ComponentID: cfg.Identity.ComponentID},
		heartbeat: groundHeartbeat,
		role:      link.RoleGround,
	}
}

// openedSession bundles a session with the recorder it writes to
type openedSession struct {
	*link.Session
	recorder *framelog.Writer
}

func (o *openedSession) Close() error {
	err := o.Session.Close()
	if o.recorder != nil {
		if rerr := o.recorder.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// dialer builds the dial function for the configured URL. The password is
// asked for once, up front, so reconnects never prompt.
func dialer(role link.Role, clientID string) (link.DialFunc, error) {
	rawURL := cfg.Connection.URL
	if rawURL == "" {
		return nil, fmt.Errorf("no connection URL: use --url or set connection.url in the config file")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection URL %q: %w", rawURL, err)
	}

	opts := link.OpenOptions{
		Username:      cfg.Connection.Username,
		SkipSSLVerify: cfg.Connection.NoSSLVerify,
		ClientID:      clientID,
		Logger:        log,
		Role:          role,
	}

	switch u.Scheme {
	case "ws", "wss", "mqtt":
		if opts.Username != "" {
			opts.Password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
	}

	return func() (link.Connection, string, error) {
		return link.Open(rawURL, opts)
	}, nil
}

// openSession connects and starts a session with heartbeats and, when
// --record is set, a frame recorder
func openSession(p sessionParams) (*openedSession, error) {
	clientID := fmt.Sprintf("lumen-%d-%d", p.local.SystemID, p.local.ComponentID)
	dial, err := dialer(p.role, clientID)
	if err != nil {
		return nil, err
	}

	opened := &openedSession{}
	opts := link.Options{
		Local:             p.local,
		SendTimeout:       cfg.Connection.SendTimeout.Duration,
		HeartbeatInterval: cfg.Connection.HeartbeatInterval.Duration,
		Heartbeat:         p.heartbeat,
		Logger:            log,
	}

	if recordPath != "" {
		w, err := framelog.Create(recordPath)
		if err != nil {
			return nil, err
		}
		opened.recorder = w
		opts.Recorder = w
	}

	s, err := link.Dial(dial, opts)
	if err != nil {
		if opened.recorder != nil {
			opened.recorder.Close()
		}
		return nil, err
	}
	opened.Session = s

	log.With(logger.Fields{"conn": s.ConnInfo()}).Info("connected")
	return opened, nil
}

// resolveTarget returns the rig address, discovering the autopilot's
// system id when none is configured
func resolveTarget(ctx context.Context, s *link.Session) (mavlink.Address, error) {
	target := mavlink.Address{SystemID: cfg.Target.SystemID, ComponentID: cfg.Target.ComponentID}
	if target.SystemID != 0 {
		return target, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Connection.DiscoveryTimeout.Duration)
	defer cancel()

	log.Info("waiting for autopilot heartbeat")
	autopilot, err := s.WaitForAutopilot(ctx)
	if err != nil {
		return mavlink.Address{}, fmt.Errorf("no autopilot found: %w", err)
	}
	target.SystemID = autopilot.SystemID

	log.With(logger.Fields{"sysid": target.SystemID, "compid": target.ComponentID}).Info("rig target resolved")
	return target, nil
}

// connectLights opens a session and returns a dispatcher aimed at the rig
func connectLights(ctx context.Context) (*openedSession, *lights.Lights, error) {
	s, err := openSession(groundParams())
	if err != nil {
		return nil, nil, err
	}

	target, err := resolveTarget(ctx, s.Session)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return s, lights.New(s.Session, target), nil
}

// reportDispatch logs a dispatch outcome the way the demos print it
func reportDispatch(what string, err error) error {
	result := lights.ResultOf(err)
	entry := log.With(logger.Fields{"result": result.String()})
	if err != nil {
		entry.WithError(err).Errorf("%s failed", what)
		return fmt.Errorf("%s: %w", what, err)
	}
	entry.Infof("%s sent", what)
	return nil
}
