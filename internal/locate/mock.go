// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package locate

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

// MockOptions configures a mock anchor.
type MockOptions struct {
	EmitterID   string        // defaults to F4CE5FC91A6A
	AnchorID    string        // defaults to CD84C98B935D
	Interval    time.Duration // defaults to 100 ms
	ReadTimeout time.Duration // defaults to transport.DefaultReadTimeout

	// Truth, when set, centres the generated angles on the orientation
	// it returns, so a mocked sweep produces small errors. Without it the
	// azimuth swings ±60 degrees.
	Truth func() aoa.GroundTruth
}

type mockTransport struct {
	opts  MockOptions
	start time.Time

	mu      sync.Mutex
	n       int
	replies []string
	closed  bool
}

// NewMockTransport returns a transport that behaves like an anchor with
// one tag in view: it emits a report every interval and answers OK to
// commands.
func NewMockTransport(opts MockOptions) transport.Transport {
	if opts.EmitterID == "" {
		opts.EmitterID = "F4CE5FC91A6A"
	}
	if opts.AnchorID == "" {
		opts.AnchorID = "CD84C98B935D"
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = transport.DefaultReadTimeout
	}
	return &mockTransport{opts: opts, start: time.Now()}
}

// sample builds the n-th report. Reports are on an absolute schedule so
// slow readers do not stretch the rate.
func (m *mockTransport) sample(n int) string {
	v := math.Sin(float64(n))
	az, el := int(v*60), int(20+v)
	if m.opts.Truth != nil {
		gt := m.opts.Truth()
		az, el = gt.Azimuth+int(v*5), gt.Elevation+int(v*2)
	}
	s := aoa.AngleSample{
		EmitterID:   m.opts.EmitterID,
		RSSI:        -50,
		Azimuth:     az,
		Elevation:   el,
		Channel:     20,
		AnchorID:    m.opts.AnchorID,
		TimestampMs: int64(time.Duration(n) * m.opts.Interval / time.Millisecond),
	}
	return s.URC()
}

func (m *mockTransport) ReadLine() (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", transport.ErrClosed
	}
	if len(m.replies) > 0 {
		line := m.replies[0]
		m.replies = m.replies[1:]
		m.mu.Unlock()
		return line, nil
	}
	m.n++
	n := m.n
	due := m.start.Add(time.Duration(n) * m.opts.Interval)
	m.mu.Unlock()

	wait := time.Until(due)
	if wait > m.opts.ReadTimeout {
		time.Sleep(m.opts.ReadTimeout)
		m.mu.Lock()
		m.n--
		m.mu.Unlock()
		return "", nil
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	return m.sample(n), nil
}

func (m *mockTransport) WriteLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrClosed
	}
	if strings.HasPrefix(line, "AT") {
		m.replies = append(m.replies, "OK")
	} else {
		m.replies = append(m.replies, "ERROR")
	}
	return nil
}

// DiscardInput drops pending replies and skips reports that were due
// while nobody was reading.
func (m *mockTransport) DiscardInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = nil
	if behind := int(time.Since(m.start)/m.opts.Interval) - m.n; behind > 0 {
		m.n += behind
	}
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
