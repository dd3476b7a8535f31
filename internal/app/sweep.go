// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/logstore"
	"github.com/relabs-tech/aoa_tester/internal/report"
	"github.com/relabs-tech/aoa_tester/internal/sweep"
)

func planFromConfig(cfg *config.Config) (sweep.Plan, error) {
	p := sweep.Plan{
		Azimuth:   sweep.Range{Start: cfg.SweepAzimuthStart, End: cfg.SweepAzimuthEnd, Step: cfg.SweepAzimuthStep},
		Elevation: sweep.Range{Start: cfg.SweepElevationStart, End: cfg.SweepElevationEnd, Step: cfg.SweepElevationStep},
		Settle:    cfg.Settle(),
		Window:    cfg.Window(),
	}
	if cfg.SweepPlanFile != "" {
		return sweep.LoadPlan(cfg.SweepPlanFile, p)
	}
	return p, p.Validate()
}

// RunSweep runs a full measurement: every orientation of the plan is
// visited, each anchor's reports are checkpointed per orientation into
// its session directory and reports are written at the end.
func RunSweep(ctx context.Context, cfg *config.Config) error {
	plan, err := planFromConfig(cfg)
	if err != nil {
		return err
	}

	pos, posLink, err := openPositioner(cfg)
	if err != nil {
		return err
	}
	defer posLink.Close()

	locators, err := openLocators(cfg, pos.Location)
	if err != nil {
		return err
	}
	defer closeLocators(locators)

	pub, err := NewPublisher(cfg, cfg.MQTTClientIDSweep)
	if err != nil {
		// live view is optional, the measurement is not
		log.Printf("sweep: MQTT disabled: %v", err)
	}
	defer pub.Close()

	analyzer := analyzerFromConfig(cfg)
	now := time.Now()
	dirs := make(map[string]string, len(locators))
	var cs []*correlator.Correlator
	for _, l := range locators {
		dirs[l.Name] = logstore.SessionDir(cfg.ReportDir, now, l.Name)
		c := correlator.New(l.Reader(locate.Strict))
		c.OnSample(func(anchor string, gt aoa.GroundTruth, ev aoa.Event) {
			pub.PublishSample(anchor, &gt, ev.Sample)
		})
		cs = append(cs, c)
	}

	runner := &sweep.Runner{
		Positioner:  pos,
		Locators:    locators,
		Supervisor:  correlator.NewSupervisor(cfg.LocateReadTimeout(), cs...),
		Plan:        plan,
		SessionDirs: dirs,
		OnBucket: func(anchor string, b *correlator.Bucket) {
			pub.PublishBucket(anchor, b, analyzer)
		},
	}

	log.Printf("sweep: %d orientations, settle %v, window %v", len(plan.Orientations()), plan.Settle, plan.Window)
	runErr := runner.Run(ctx)
	if runErr != nil {
		log.Printf("sweep: stopped: %v", runErr)
	}

	var reportErrs []error
	for _, c := range cs {
		data := c.Data()
		if len(data) == 0 {
			continue
		}
		s, err := writeReports(dirs[c.Name()], c.Name(), data, analyzer)
		if err != nil {
			reportErrs = append(reportErrs, err)
			continue
		}
		if err := report.WriteText(os.Stdout, s); err != nil {
			reportErrs = append(reportErrs, err)
		}
	}

	if err := errors.Join(reportErrs...); err != nil {
		return errors.Join(runErr, fmt.Errorf("sweep: reports: %w", err))
	}
	return runErr
}
