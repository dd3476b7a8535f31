// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial"
)

// Serial drivers. bugst has proper read timeouts and port listing;
// jacobsa is the one to pick when the module needs RTS/CTS flow control.
const (
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
)

// SerialOptions configures a serial transport.
type SerialOptions struct {
	PortName    string
	BaudRate    int
	FlowControl bool          // RTS/CTS
	ReadTimeout time.Duration // per ReadLine call
	Driver      string
	LineEnding  string // appended by WriteLine, "\r" when empty
}

type serialTransport struct {
	name        string
	port        io.ReadWriteCloser
	resetInput  func() error
	buf         *lineBuffer
	readTimeout time.Duration
	eol         string

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens a serial port. Failing to open is fatal for the caller:
// no collection can start without the device.
func OpenSerial(opts SerialOptions) (Transport, error) {
	if opts.PortName == "" {
		return nil, errors.New("transport: serial port name is required")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.LineEnding == "" {
		opts.LineEnding = "\r"
	}

	t := &serialTransport{
		name:        opts.PortName,
		buf:         newLineBuffer(),
		readTimeout: opts.ReadTimeout,
		eol:         opts.LineEnding,
	}

	switch opts.Driver {
	case "", DriverBugst:
		if opts.FlowControl {
			return nil, fmt.Errorf("transport: %s: RTS/CTS flow control needs the %s driver", opts.PortName, DriverJacobsa)
		}
		port, err := serial.Open(opts.PortName, &serial.Mode{
			BaudRate: opts.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", opts.PortName, err)
		}
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", opts.PortName, err)
		}
		t.port = port
		t.resetInput = port.ResetInputBuffer

	case DriverJacobsa:
		port, err := jserial.Open(jserial.OpenOptions{
			PortName:              opts.PortName,
			BaudRate:              uint(opts.BaudRate),
			DataBits:              8,
			StopBits:              1,
			ParityMode:            jserial.PARITY_NONE,
			RTSCTSFlowControl:     opts.FlowControl,
			MinimumReadSize:       0,
			InterCharacterTimeout: interCharacterTimeout(opts.ReadTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", opts.PortName, err)
		}
		t.port = port
		t.resetInput = func() error { return nil }

	default:
		return nil, fmt.Errorf("transport: unknown serial driver %q", opts.Driver)
	}

	log.Printf("serial: %s opened at %d baud (driver=%s)", opts.PortName, opts.BaudRate, driverName(opts.Driver))
	return t, nil
}

// ListSerialPorts returns the serial ports present on this machine.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (t *serialTransport) ReadLine() (string, error) {
	if t.isClosed() {
		return "", ErrClosed
	}
	line, err := t.buf.readLine(timeoutReader{t.port}, time.Now().Add(t.readTimeout))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", t.name, err)
	}
	return line, nil
}

func (t *serialTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(t.port, line+t.eol); err != nil {
		return fmt.Errorf("write %s: %w", t.name, err)
	}
	return nil
}

func (t *serialTransport) DiscardInput() error {
	t.buf.reset()
	if err := t.resetInput(); err != nil {
		return fmt.Errorf("reset input %s: %w", t.name, err)
	}
	return nil
}

func (t *serialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}

func (t *serialTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// timeoutReader turns the io.EOF a VTIME-based port returns on an idle
// line into an empty read, which is how the other drivers report timeouts.
type timeoutReader struct {
	r io.Reader
}

func (r timeoutReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// interCharacterTimeout converts a read timeout into the 100 ms units the
// termios VTIME field accepts.
func interCharacterTimeout(d time.Duration) uint {
	ms := d.Milliseconds()
	ms = (ms + 99) / 100 * 100
	if ms < 100 {
		ms = 100
	}
	if ms > 25500 {
		ms = 25500
	}
	return uint(ms)
}

func driverName(d string) string {
	if d == "" {
		return DriverBugst
	}
	return d
}
