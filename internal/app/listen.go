// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/report"
)

// ListenTableInterval is how often RunListen prints the running table.
const ListenTableInterval = time.Second

// RunListen follows live reports from every configured anchor without a
// positioner. Reports of the tracked tag feed per anchor running
// statistics, printed to out every interval, and are published to MQTT
// when a broker is configured.
func RunListen(ctx context.Context, cfg *config.Config, out io.Writer, interval time.Duration) error {
	locators, err := openLocators(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLocators(locators)

	pub, err := NewPublisher(cfg, cfg.MQTTClientIDListen)
	if err != nil {
		log.Printf("listen: MQTT disabled: %v", err)
	}
	defer pub.Close()

	for _, l := range locators {
		if err := l.Enable(); err != nil {
			return err
		}
	}
	defer func() {
		for _, l := range locators {
			if err := l.Disable(); err != nil {
				log.Printf("listen: %v", err)
			}
		}
	}()

	stats := report.NewRunning(cfg.TrackedTag)
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range locators {
		r := l.Reader(locate.Lenient)
		g.Go(func() error {
			return follow(gctx, r, stats, pub)
		})
	}

	if interval <= 0 {
		interval = ListenTableInterval
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := stats.WriteTable(out); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	stats.WriteTable(out)
	return err
}

// follow reads r until ctx is done or the source ends.
func follow(ctx context.Context, r *locate.Reader, stats *report.Running, pub *Publisher) error {
	defer func() {
		st := r.Stats()
		log.Printf("listen: %s: %d lines, %d reports, %d damaged, %d restarts", r.Name(), st.Lines, st.Samples, st.FramingErrors, st.Restarts)
	}()
	for ctx.Err() == nil {
		ev, ok, err := r.NextEvent()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}
		if stats.Add(ev.Sample) {
			pub.PublishSample(r.Name(), nil, ev.Sample)
		}
	}
	return nil
}
