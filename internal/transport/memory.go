package transport

import (
	"io"
	"sync"
	"time"
)

// Memory is an in-memory transport used for log replay and by tests.
// Lines handed to Feed come back from ReadLine in order. A replay memory
// returns io.EOF once drained; a live one waits up to its read timeout for
// more lines and then reports a timeout with an empty line.
type Memory struct {
	// Respond, when set, is called for every written line and its result
	// is queued as the device's reply.
	Respond func(line string) []string

	readTimeout time.Duration
	eof         bool
	notify      chan struct{}

	mu      sync.Mutex
	lines   []string
	written []string
	closed  bool
}

// NewReplay returns a transport that yields lines and then io.EOF.
func NewReplay(lines []string) *Memory {
	m := &Memory{eof: true, notify: make(chan struct{}, 1)}
	m.lines = append(m.lines, lines...)
	return m
}

// NewMemory returns a live-like transport with the given read timeout.
func NewMemory(readTimeout time.Duration) *Memory {
	return &Memory{readTimeout: readTimeout, notify: make(chan struct{}, 1)}
}

// Feed queues lines for ReadLine.
func (m *Memory) Feed(lines ...string) {
	m.mu.Lock()
	m.lines = append(m.lines, lines...)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Written returns every line written so far.
func (m *Memory) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

func (m *Memory) ReadLine() (string, error) {
	var timer *time.Timer
	for {
		m.mu.Lock()
		switch {
		case m.closed:
			m.mu.Unlock()
			return "", ErrClosed
		case len(m.lines) > 0:
			line := m.lines[0]
			m.lines = m.lines[1:]
			m.mu.Unlock()
			return line, nil
		case m.eof:
			m.mu.Unlock()
			return "", io.EOF
		}
		m.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(m.readTimeout)
			defer timer.Stop()
		}
		select {
		case <-m.notify:
		case <-timer.C:
			return "", nil
		}
	}
}

func (m *Memory) WriteLine(line string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.written = append(m.written, line)
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		if reply := respond(line); len(reply) > 0 {
			m.Feed(reply...)
		}
	}
	return nil
}

func (m *Memory) DiscardInput() error {
	m.mu.Lock()
	m.lines = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}
