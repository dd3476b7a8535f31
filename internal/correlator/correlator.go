// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package correlator attributes angle reports to the orientation the
// positioner held while they were received.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/locate"
)

// Bucket holds everything received at one ground truth.
type Bucket struct {
	GroundTruth aoa.GroundTruth              `json:"ground_truth"`
	RawLines    []string                     `json:"raw_lines"`
	ByEmitter   map[string][]aoa.AngleSample `json:"by_emitter"`
	Order       []string                     `json:"order"` // emitters in first-seen order
}

// NewBucket returns an empty bucket for gt.
func NewBucket(gt aoa.GroundTruth) *Bucket {
	return &Bucket{GroundTruth: gt, ByEmitter: make(map[string][]aoa.AngleSample)}
}

// Add appends an event, keeping arrival order per emitter.
func (b *Bucket) Add(ev aoa.Event) {
	id := ev.Sample.EmitterID
	if _, seen := b.ByEmitter[id]; !seen {
		b.Order = append(b.Order, id)
	}
	b.RawLines = append(b.RawLines, ev.Line)
	b.ByEmitter[id] = append(b.ByEmitter[id], ev.Sample)
}

// Len is the number of samples in the bucket.
func (b *Bucket) Len() int {
	return len(b.RawLines)
}

// SampleFunc is called for every sample as it is collected.
type SampleFunc func(anchor string, gt aoa.GroundTruth, ev aoa.Event)

// Correlator owns one anchor's reader and the buckets collected from it.
// A Correlator is driven by one goroutine at a time.
type Correlator struct {
	reader   *locate.Reader
	onSample SampleFunc

	mu   sync.Mutex
	data map[aoa.GroundTruth]*Bucket
}

// New returns a correlator reading from r.
func New(r *locate.Reader) *Correlator {
	return &Correlator{reader: r, data: make(map[aoa.GroundTruth]*Bucket)}
}

// OnSample registers fn to be called for every collected sample.
func (c *Correlator) OnSample(fn SampleFunc) {
	c.onSample = fn
}

// Name is the anchor name of the underlying reader.
func (c *Correlator) Name() string {
	return c.reader.Name()
}

// Collect reads reports for window and files them under gt. Collection
// ends early when ctx is cancelled; the bucket gathered so far is stored
// either way. A module restart aborts the window: nothing is stored for
// gt and previously completed buckets are left alone.
//
// The window may overrun by up to one transport read timeout.
func (c *Correlator) Collect(ctx context.Context, window time.Duration, gt aoa.GroundTruth) (*Bucket, error) {
	b, err := c.collect(ctx, window, gt)
	if err != nil {
		return nil, err
	}
	c.store(b)
	return b, nil
}

// collect fills a bucket for one window without storing it.
func (c *Correlator) collect(ctx context.Context, window time.Duration, gt aoa.GroundTruth) (*Bucket, error) {
	b := NewBucket(gt)
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) && ctx.Err() == nil {
		ev, ok, err := c.reader.NextEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("collect %s at %s: %w", c.Name(), gt, err)
		}
		if !ok {
			continue
		}
		c.add(b, ev)
	}

	log.Printf("correlator: %s: %d samples from %d emitters at %s", c.Name(), b.Len(), len(b.Order), gt)
	return b, nil
}

// Replay reads until the source is exhausted and files everything under
// gt. It is used to rebuild buckets from logged sessions.
func (c *Correlator) Replay(gt aoa.GroundTruth) (*Bucket, error) {
	b := NewBucket(gt)
	for {
		ev, ok, err := c.reader.NextEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay %s at %s: %w", c.Name(), gt, err)
		}
		if ok {
			c.add(b, ev)
		}
	}
	c.store(b)
	return b, nil
}

func (c *Correlator) add(b *Bucket, ev aoa.Event) {
	b.Add(ev)
	if c.onSample != nil {
		c.onSample(c.Name(), b.GroundTruth, ev)
	}
}

// store replaces any earlier bucket for the same ground truth.
func (c *Correlator) store(b *Bucket) {
	c.mu.Lock()
	c.data[b.GroundTruth] = b
	c.mu.Unlock()
}

// Data returns the collected buckets.
func (c *Correlator) Data() map[aoa.GroundTruth]*Bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[aoa.GroundTruth]*Bucket, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Keys returns the ground truths collected so far, sorted.
func (c *Correlator) Keys() []aoa.GroundTruth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SortedKeys(c.data)
}

// Clear drops every bucket.
func (c *Correlator) Clear() {
	c.mu.Lock()
	c.data = make(map[aoa.GroundTruth]*Bucket)
	c.mu.Unlock()
}

// SortedKeys returns the keys of data in azimuth-then-elevation order.
func SortedKeys[V any](data map[aoa.GroundTruth]V) []aoa.GroundTruth {
	keys := make([]aoa.GroundTruth, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
