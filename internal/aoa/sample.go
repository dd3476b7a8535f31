// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import (
	"fmt"
	"strings"
)

// ReportTag is the URC prefix the locating module uses for angle reports.
const ReportTag = "+UUDF"

// EmitterIDLength is the length of a tag instance identifier.
const EmitterIDLength = 12

// AngleSample is a single decoded angle report.
type AngleSample struct {
	EmitterID   string `json:"emitter_id"` // tag instance id, 12 hex chars
	RSSI        int    `json:"rssi"`       // dBm, first polarization
	Azimuth     int    `json:"azimuth"`    // degrees, not clamped
	Elevation   int    `json:"elevation"`  // degrees, not clamped
	RSSI2       int    `json:"rssi2"`      // dBm, second polarization
	Channel     int    `json:"channel"`
	AnchorID    string `json:"anchor_id"`
	UserDefined string `json:"user_defined"`
	TimestampMs int64  `json:"timestamp_ms"` // device monotonic clock

	// Only set for reports decoded from the IQ debug format.
	AzimuthRaw   int    `json:"azimuth_raw,omitempty"`
	ElevationRaw int    `json:"elevation_raw,omitempty"`
	IQ           []int8 `json:"iq,omitempty"`
}

// URC renders the sample back into its wire form.
func (s AngleSample) URC() string {
	return fmt.Sprintf(`%s:%s,%d,%d,%d,%d,%d,"%s","%s",%d`,
		ReportTag,
		s.EmitterID,
		s.RSSI,
		s.Azimuth,
		s.Elevation,
		s.RSSI2,
		s.Channel,
		s.AnchorID,
		s.UserDefined,
		s.TimestampMs,
	)
}

// GroundTruth is the commanded positioner orientation, in whole degrees.
type GroundTruth struct {
	Azimuth   int `json:"azimuth" yaml:"azimuth"`
	Elevation int `json:"elevation" yaml:"elevation"`
}

// String renders the key the same way log files are named: "{az}_{el}".
func (g GroundTruth) String() string {
	return fmt.Sprintf("%d_%d", g.Azimuth, g.Elevation)
}

// Less orders ground truths azimuth first.
func (g GroundTruth) Less(o GroundTruth) bool {
	if g.Azimuth != o.Azimuth {
		return g.Azimuth < o.Azimuth
	}
	return g.Elevation < o.Elevation
}

// Event is a report line together with the sample decoded from it.
type Event struct {
	Line   string      `json:"line"`
	Sample AngleSample `json:"sample"`
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
