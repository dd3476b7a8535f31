// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package locate reads angle reports from a locating module (anchor) and
// controls its reporting.
package locate

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

// StartupMarker is printed by the module when it boots, so seeing it in
// the middle of a run means it crashed and restarted.
const StartupMarker = "+STARTUP"

// FramingErrorThreshold is the number of consecutive damaged report lines
// after which the reader warns about the link.
const FramingErrorThreshold = 10

// ErrDeviceRestarted is returned when a restart marker shows up in strict mode.
var ErrDeviceRestarted = errors.New("locating module restarted")

// Mode selects how restart markers are handled.
type Mode int

const (
	// Strict fails on a restart marker. Live capture always runs strict.
	Strict Mode = iota
	// Lenient logs restart markers in replayed logs and keeps going.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode maps a config value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	}
	return Strict, fmt.Errorf("locate: unknown replay mode %q (want strict or lenient)", s)
}

// Stats are the reader's health counters.
type Stats struct {
	Lines         uint64 `json:"lines"`
	Samples       uint64 `json:"samples"`
	FramingErrors uint64 `json:"framing_errors"`
	Restarts      uint64 `json:"restarts"`
}

// Reader turns transport lines into events. It is owned by a single
// goroutine; Stats may be read from anywhere.
type Reader struct {
	name string
	t    transport.Transport
	mode Mode

	lines    atomic.Uint64
	samples  atomic.Uint64
	framing  atomic.Uint64
	restarts atomic.Uint64

	consecutive int
}

// NewReader reads from t. name identifies the anchor in logs.
func NewReader(name string, t transport.Transport, mode Mode) *Reader {
	return &Reader{name: name, t: t, mode: mode}
}

// Name returns the anchor name the reader was created with.
func (r *Reader) Name() string {
	return r.name
}

// NextEvent reads one line. ok is false when the line was empty (read
// timeout) or not a report. Transport errors, including io.EOF at the end
// of a replay, are returned as is.
func (r *Reader) NextEvent() (ev aoa.Event, ok bool, err error) {
	line, err := r.t.ReadLine()
	if err != nil {
		return aoa.Event{}, false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return aoa.Event{}, false, nil
	}
	r.lines.Add(1)

	if strings.Contains(line, StartupMarker) {
		r.restarts.Add(1)
		if r.mode == Strict {
			return aoa.Event{}, false, fmt.Errorf("%s: %w", r.name, ErrDeviceRestarted)
		}
		log.Printf("locate: %s: restart marker in log, continuing", r.name)
		return aoa.Event{}, false, nil
	}

	sample, reject := aoa.Decode(line)
	if reject == aoa.RejectNone {
		r.consecutive = 0
		r.samples.Add(1)
		return aoa.Event{Line: line, Sample: sample}, true, nil
	}
	if reject.Framing() {
		r.framing.Add(1)
		r.consecutive++
		if r.consecutive%FramingErrorThreshold == 0 {
			log.Printf("locate: %s: %d damaged reports in a row, check the link (last: %q)", r.name, r.consecutive, line)
		}
	}
	return aoa.Event{}, false, nil
}

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Lines:         r.lines.Load(),
		Samples:       r.samples.Load(),
		FramingErrors: r.framing.Load(),
		Restarts:      r.restarts.Load(),
	}
}
