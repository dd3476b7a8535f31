// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package command implements the request/response exchange both devices
// speak: a text command goes out, reply lines are gathered until an OK or
// ERROR token shows up or the timeout passes.
package command

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/transport"
)

const (
	TokenOK    = "OK"
	TokenError = "ERROR"
)

var (
	// ErrCommandFailed means the device answered without OK (usually ERROR).
	ErrCommandFailed = errors.New("command failed")
	// ErrCommandTimeout means the deadline passed before the exchange finished.
	ErrCommandTimeout = errors.New("command timed out")
)

// Client serializes commands over one transport; only one command is in
// flight at a time.
type Client struct {
	name string
	t    transport.Transport
	mu   sync.Mutex
}

// NewClient wraps a transport. name is used as the log prefix.
func NewClient(name string, t transport.Transport) *Client {
	return &Client{name: name, t: t}
}

// SendAndWait writes cmd and collects reply lines until the accumulated
// response contains OK or ERROR, or timeout elapses. The response lines are
// joined with "\n".
//
// The deadline is checked after the token search, so an OK that lands just
// as the timeout expires still fails the command.
func (c *Client) SendAndWait(cmd string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.t.DiscardInput(); err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	log.Printf("%s: sending %s", c.name, cmd)
	start := time.Now()
	if err := c.t.WriteLine(cmd); err != nil {
		return "", fmt.Errorf("%s: send %q: %w", c.name, cmd, err)
	}
	deadline := start.Add(timeout)

	var lines []string
	resp := ""
	for {
		line, err := c.t.ReadLine()
		if err != nil {
			return "", fmt.Errorf("%s: read reply to %q: %w", c.name, cmd, err)
		}
		if line != "" {
			lines = append(lines, line)
			resp = strings.Join(lines, "\n")
		}
		if time.Now().After(deadline) || terminated(resp) {
			break
		}
	}

	if !strings.Contains(resp, TokenOK) {
		if strings.Contains(resp, TokenError) {
			log.Printf("%s: %s answered %q", c.name, cmd, resp)
			return "", fmt.Errorf("%s: %q: %w", c.name, cmd, ErrCommandFailed)
		}
		return "", fmt.Errorf("%s: %q after %v: %w", c.name, cmd, timeout, ErrCommandTimeout)
	}
	if time.Now().After(deadline) {
		return "", fmt.Errorf("%s: %q after %v: %w", c.name, cmd, timeout, ErrCommandTimeout)
	}
	return resp, nil
}

// Transport returns the underlying transport.
func (c *Client) Transport() transport.Transport {
	return c.t
}

func terminated(resp string) bool {
	return strings.Contains(resp, TokenOK) || strings.Contains(resp, TokenError)
}
