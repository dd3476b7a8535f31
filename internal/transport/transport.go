// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport provides line oriented links to the rig's devices:
// serial ports, the positioner's websocket endpoint, UDP report streams and
// in-memory sources for replay and tests.
package transport

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"time"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport: closed")

// ErrReadOnly is returned by WriteLine on receive-only transports.
var ErrReadOnly = errors.New("transport: read-only")

// Transport is a duplex, line oriented channel to a device.
//
// ReadLine blocks for at most the transport's read timeout and returns an
// empty string when no complete line arrived in that time. Line terminators
// are stripped. A replay source returns io.EOF once it is exhausted.
type Transport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	DiscardInput() error
	Close() error
}

// DefaultReadTimeout matches the locating module's serial timeout.
const DefaultReadTimeout = 2 * time.Second

// MaxLineLength bounds a buffered partial line. A longer line is dropped
// up to and including its terminator.
const MaxLineLength = 4096

// lineBuffer splits a byte stream into lines, keeping partial lines
// across reads.
type lineBuffer struct {
	pending  bytes.Buffer
	chunk    []byte
	skipping bool
	dropped  int
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{chunk: make([]byte, 512)}
}

// next returns a buffered complete line, if any.
func (b *lineBuffer) next() (string, bool) {
	i := bytes.IndexByte(b.pending.Bytes(), '\n')
	if i < 0 {
		return "", false
	}
	line := string(b.pending.Next(i + 1))
	return strings.TrimRight(line, "\r\n"), true
}

// readLine pulls from r until a complete line is buffered, r reports a
// timeout by returning no data, or deadline passes.
func (b *lineBuffer) readLine(r io.Reader, deadline time.Time) (string, error) {
	for {
		if line, ok := b.next(); ok {
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		n, err := r.Read(b.chunk)
		if n > 0 {
			b.write(b.chunk[:n])
			continue
		}
		if err != nil {
			return "", err
		}
		return "", nil
	}
}

// write buffers data, dropping any line that outgrows MaxLineLength.
func (b *lineBuffer) write(data []byte) {
	if b.skipping {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			b.dropped += len(data)
			return
		}
		b.dropped += i + 1
		data = data[i+1:]
		b.skipping = false
	}
	b.pending.Write(data)
	if b.pending.Len() > MaxLineLength && bytes.IndexByte(b.pending.Bytes(), '\n') < 0 {
		log.Printf("transport: dropping line longer than %d bytes", MaxLineLength)
		b.dropped += b.pending.Len()
		b.pending.Reset()
		b.skipping = true
	}
}

func (b *lineBuffer) reset() {
	b.pending.Reset()
	b.skipping = false
}

// splitLines breaks a datagram or message into its lines, dropping the
// terminators and a trailing empty remainder.
func splitLines(payload []byte) []string {
	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
