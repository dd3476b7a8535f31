// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sweep walks the positioner over a grid of orientations and
// collects angle reports at each of them.
package sweep

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
)

// Range is an inclusive run of angles. Step must divide End-Start.
type Range struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
	Step  int `yaml:"step"`
}

// Validate checks that r can be walked in whole steps.
func (r Range) Validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("step %d must be positive", r.Step)
	}
	if r.End < r.Start {
		return fmt.Errorf("end %d is below start %d", r.End, r.Start)
	}
	if (r.End-r.Start)%r.Step != 0 {
		return fmt.Errorf("step %d does not evenly divide %d..%d", r.Step, r.Start, r.End)
	}
	return nil
}

// Values lists the angles of r.
func (r Range) Values() []int {
	var out []int
	for v := r.Start; v <= r.End; v += r.Step {
		out = append(out, v)
	}
	return out
}

// Plan describes a sweep. When Points is set it is walked as given and
// the ranges are ignored.
type Plan struct {
	Azimuth   Range             `yaml:"azimuth"`
	Elevation Range             `yaml:"elevation"`
	Points    []aoa.GroundTruth `yaml:"points"`
	Settle    time.Duration     `yaml:"settle"`
	Window    time.Duration     `yaml:"window"`
}

// DefaultPlan is the bench sweep: -40..40 in steps of 20 on both axes,
// 2 s settle and 7 s window per point.
func DefaultPlan() Plan {
	return Plan{
		Azimuth:   Range{Start: -40, End: 40, Step: 20},
		Elevation: Range{Start: -40, End: 40, Step: 20},
		Settle:    2 * time.Second,
		Window:    7 * time.Second,
	}
}

// Validate checks the plan.
func (p Plan) Validate() error {
	if p.Window <= 0 {
		return errors.New("sweep: window must be positive")
	}
	if p.Settle < 0 {
		return errors.New("sweep: settle must not be negative")
	}
	if len(p.Points) > 0 {
		return nil
	}
	if err := p.Azimuth.Validate(); err != nil {
		return fmt.Errorf("sweep: azimuth: %w", err)
	}
	if err := p.Elevation.Validate(); err != nil {
		return fmt.Errorf("sweep: elevation: %w", err)
	}
	return nil
}

// Orientations lists the orientations in visiting order: azimuth outer,
// elevation inner.
func (p Plan) Orientations() []aoa.GroundTruth {
	if len(p.Points) > 0 {
		return append([]aoa.GroundTruth(nil), p.Points...)
	}
	var out []aoa.GroundTruth
	for _, az := range p.Azimuth.Values() {
		for _, el := range p.Elevation.Values() {
			out = append(out, aoa.GroundTruth{Azimuth: az, Elevation: el})
		}
	}
	return out
}

// LoadPlan reads a YAML plan. Fields missing from the file keep the
// values of base.
func LoadPlan(path string, base Plan) (Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read sweep plan: %w", err)
	}
	p := base
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Plan{}, fmt.Errorf("parse sweep plan %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
