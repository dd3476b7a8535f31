// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package positioner drives the two-axis antenna positioner. Moves are
// relative on the wire; the absolute orientation is tracked here, assuming
// the rig was homed at 0,0 before start.
package positioner

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/command"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

const (
	DefaultCommandTimeout = time.Second
	DefaultMoveTimeout    = 10 * time.Second
)

// Positioner wraps the command client with the positioner's command set.
type Positioner struct {
	client         *command.Client
	commandTimeout time.Duration
	moveTimeout    time.Duration

	mu       sync.Mutex
	position aoa.GroundTruth
}

// Option tweaks a Positioner.
type Option func(*Positioner)

// WithTimeouts overrides the command and move timeouts.
func WithTimeouts(command, move time.Duration) Option {
	return func(p *Positioner) {
		if command > 0 {
			p.commandTimeout = command
		}
		if move > 0 {
			p.moveTimeout = move
		}
	}
}

// New returns a positioner talking over t.
func New(t transport.Transport, opts ...Option) *Positioner {
	p := &Positioner{
		client:         command.NewClient("positioner", t),
		commandTimeout: DefaultCommandTimeout,
		moveTimeout:    DefaultMoveTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Enable energizes the steppers.
func (p *Positioner) Enable() error {
	if _, err := p.client.SendAndWait("ENABLE=1", p.commandTimeout); err != nil {
		return fmt.Errorf("failed enabling antenna: %w", err)
	}
	return nil
}

// Disable releases the steppers.
func (p *Positioner) Disable() error {
	if _, err := p.client.SendAndWait("ENABLE=0", p.commandTimeout); err != nil {
		return fmt.Errorf("failed disabling antenna: %w", err)
	}
	return nil
}

// Rotate turns the azimuth axis by delta degrees.
func (p *Positioner) Rotate(delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := p.client.SendAndWait(fmt.Sprintf("AZIMUTH=%d", delta), p.moveTimeout); err != nil {
		return fmt.Errorf("failed rotating antenna by %d: %w", delta, err)
	}
	p.mu.Lock()
	p.position.Azimuth += delta
	p.mu.Unlock()
	return nil
}

// Tilt moves the elevation axis by delta degrees.
func (p *Positioner) Tilt(delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := p.client.SendAndWait(fmt.Sprintf("TILT=%d", delta), p.moveTimeout); err != nil {
		return fmt.Errorf("failed tilting antenna by %d: %w", delta, err)
	}
	p.mu.Lock()
	p.position.Elevation += delta
	p.mu.Unlock()
	return nil
}

// MoveTo brings the positioner to an absolute orientation. Azimuth is
// moved first, as the sweep does.
func (p *Positioner) MoveTo(gt aoa.GroundTruth) error {
	cur := p.Location()
	if err := p.Rotate(gt.Azimuth - cur.Azimuth); err != nil {
		return err
	}
	return p.Tilt(gt.Elevation - cur.Elevation)
}

// Home returns to 0,0.
func (p *Positioner) Home() error {
	return p.MoveTo(aoa.GroundTruth{})
}

// Location is the tracked absolute orientation.
func (p *Positioner) Location() aoa.GroundTruth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// QueryAzimuth asks the firmware for the azimuth it believes it is at.
func (p *Positioner) QueryAzimuth() (int, error) {
	resp, err := p.client.SendAndWait("GET_ANGLE", p.commandTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed reading angle: %w", err)
	}
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == command.TokenOK {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return 0, fmt.Errorf("positioner: unexpected GET_ANGLE reply %q", line)
		}
		return v, nil
	}
	return 0, fmt.Errorf("positioner: GET_ANGLE reply carries no angle: %q", resp)
}
