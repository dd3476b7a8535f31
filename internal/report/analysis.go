// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report turns collected buckets into error statistics and renders
// them as text, JSON and PNG histograms.
package report

import (
	"math"
	"time"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
)

// Thresholds decide pass/fail. An axis passes when at least PassRatio of
// its errors are within ToleranceDeg.
type Thresholds struct {
	ToleranceDeg float64 `json:"tolerance_deg"`
	PassRatio    float64 `json:"pass_ratio"`
}

// DefaultThresholds is ±10 degrees for 90% of samples.
func DefaultThresholds() Thresholds {
	return Thresholds{ToleranceDeg: 10, PassRatio: 0.9}
}

// ErrorRecord is one sample's deviation from the ground truth.
type ErrorRecord struct {
	EmitterID      string `json:"emitter_id"`
	AzimuthError   int    `json:"azimuth_error"`
	ElevationError int    `json:"elevation_error"`
}

// Filter drops data before analysis.
type Filter struct {
	// MaxAngle skips ground truths where both axes exceed it. 0 keeps all.
	MaxAngle int
	// DropNinety drops samples reporting ±90 on either axis, which the
	// module emits when it has no estimate.
	DropNinety bool
}

// KeepGroundTruth reports whether a bucket at gt is analysed.
func (f Filter) KeepGroundTruth(gt aoa.GroundTruth) bool {
	if f.MaxAngle <= 0 {
		return true
	}
	return abs(gt.Azimuth) <= f.MaxAngle || abs(gt.Elevation) <= f.MaxAngle
}

// KeepSample reports whether s is analysed.
func (f Filter) KeepSample(s aoa.AngleSample) bool {
	if !f.DropNinety {
		return true
	}
	return abs(s.Azimuth) != 90 && abs(s.Elevation) != 90
}

// Errors computes the error of every sample in b, emitters in first-seen
// order. invert flips both signs for an antenna mounted upside down.
func Errors(b *correlator.Bucket, invert bool) []ErrorRecord {
	return Analyzer{Invert: invert}.Errors(b)
}

// Analyzer bundles the knobs of an analysis run.
type Analyzer struct {
	Thresholds Thresholds
	Filter     Filter
	Invert     bool
}

// Errors is the package level Errors with the analyzer's filter applied.
func (a Analyzer) Errors(b *correlator.Bucket) []ErrorRecord {
	var out []ErrorRecord
	for _, id := range b.Order {
		for _, s := range b.ByEmitter[id] {
			if !a.Filter.KeepSample(s) {
				continue
			}
			az := s.Azimuth - b.GroundTruth.Azimuth
			el := s.Elevation - b.GroundTruth.Elevation
			if a.Invert {
				az, el = -az, -el
			}
			out = append(out, ErrorRecord{EmitterID: id, AzimuthError: az, ElevationError: el})
		}
	}
	return out
}

// Combine merges the errors of several buckets per emitter.
func (a Analyzer) Combine(buckets ...*correlator.Bucket) map[string][]ErrorRecord {
	out := make(map[string][]ErrorRecord)
	for _, b := range buckets {
		if !a.Filter.KeepGroundTruth(b.GroundTruth) {
			continue
		}
		for _, e := range a.Errors(b) {
			out[e.EmitterID] = append(out[e.EmitterID], e)
		}
	}
	return out
}

// PassRate is the fraction of errs within ±tolerance. An empty slice
// has rate 0.
func PassRate(errs []int, tolerance float64) float64 {
	if len(errs) == 0 {
		return 0
	}
	n := 0
	for _, e := range errs {
		if math.Abs(float64(e)) <= tolerance {
			n++
		}
	}
	return float64(n) / float64(len(errs))
}

// AxisStats describes the error distribution on one axis.
type AxisStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	MinError int     `json:"min_error"`
	MaxError int     `json:"max_error"`
	PassRate float64 `json:"pass_rate"`
	Passed   bool    `json:"passed"`
}

// Evaluate computes the statistics of errs against th.
func Evaluate(errs []int, th Thresholds) AxisStats {
	st := AxisStats{Count: len(errs)}
	if len(errs) == 0 {
		return st
	}
	st.MinError, st.MaxError = errs[0], errs[0]
	sum := 0.0
	for _, e := range errs {
		sum += float64(e)
		st.MinError = min(st.MinError, e)
		st.MaxError = max(st.MaxError, e)
	}
	st.Mean = sum / float64(len(errs))
	sq := 0.0
	for _, e := range errs {
		d := float64(e) - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(errs)))
	st.PassRate = PassRate(errs, th.ToleranceDeg)
	st.Passed = st.PassRate >= th.PassRatio
	return st
}

// EmitterResult is the verdict for one emitter.
type EmitterResult struct {
	EmitterID string    `json:"emitter_id"`
	Azimuth   AxisStats `json:"azimuth"`
	Elevation AxisStats `json:"elevation"`
	Passed    bool      `json:"passed"`
}

func evaluateEmitter(id string, errs []ErrorRecord, th Thresholds) EmitterResult {
	az := make([]int, len(errs))
	el := make([]int, len(errs))
	for i, e := range errs {
		az[i], el[i] = e.AzimuthError, e.ElevationError
	}
	r := EmitterResult{EmitterID: id, Azimuth: Evaluate(az, th), Elevation: Evaluate(el, th)}
	r.Passed = r.Azimuth.Passed && r.Elevation.Passed
	return r
}

// BucketResult holds the per emitter verdicts at one ground truth.
type BucketResult struct {
	GroundTruth aoa.GroundTruth `json:"ground_truth"`
	Samples     int             `json:"samples"`
	Emitters    []EmitterResult `json:"emitters"`
}

// Summary is the full analysis of one anchor's session.
type Summary struct {
	Anchor      string          `json:"anchor"`
	GeneratedAt time.Time       `json:"generated_at"`
	Thresholds  Thresholds      `json:"thresholds"`
	Inverted    bool            `json:"inverted"`
	Buckets     []BucketResult  `json:"buckets"`
	Combined    []EmitterResult `json:"combined"`
	Passed      bool            `json:"passed"`

	errors map[string][]ErrorRecord
}

// Errors returns the combined error records of emitter id.
func (s Summary) Errors(id string) []ErrorRecord {
	return s.errors[id]
}

// Summarize analyses a session. Buckets are visited in ground truth
// order; combined results list emitters in first-seen order.
func (a Analyzer) Summarize(anchor string, data map[aoa.GroundTruth]*correlator.Bucket) Summary {
	s := Summary{
		Anchor:      anchor,
		GeneratedAt: time.Now(),
		Thresholds:  a.Thresholds,
		Inverted:    a.Invert,
		errors:      make(map[string][]ErrorRecord),
	}

	var order []string
	for _, gt := range correlator.SortedKeys(data) {
		if !a.Filter.KeepGroundTruth(gt) {
			continue
		}
		b := data[gt]
		br := BucketResult{GroundTruth: gt}
		perEmitter := make(map[string][]ErrorRecord)
		for _, e := range a.Errors(b) {
			perEmitter[e.EmitterID] = append(perEmitter[e.EmitterID], e)
			br.Samples++
		}
		for _, id := range b.Order {
			errs, ok := perEmitter[id]
			if !ok {
				continue
			}
			br.Emitters = append(br.Emitters, evaluateEmitter(id, errs, a.Thresholds))
			if _, seen := s.errors[id]; !seen {
				order = append(order, id)
			}
			s.errors[id] = append(s.errors[id], errs...)
		}
		s.Buckets = append(s.Buckets, br)
	}

	s.Passed = len(order) > 0
	for _, id := range order {
		r := evaluateEmitter(id, s.errors[id], a.Thresholds)
		s.Combined = append(s.Combined, r)
		s.Passed = s.Passed && r.Passed
	}
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
