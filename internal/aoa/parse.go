// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aoa

import (
	"errors"
	"strconv"
	"strings"
)

// Reject tells why a line was not turned into a sample.
type Reject int

const (
	RejectNone       Reject = iota // line decoded
	RejectPrefix                   // not a +UUDF report
	RejectFieldCount               // wrong number of fields
	RejectIdentifier               // emitter id is not 12 characters
	RejectNumber                   // numeric field failed to parse
)

var rejectNames = [...]string{"none", "prefix", "field-count", "identifier", "number"}

func (r Reject) String() string {
	if int(r) < len(rejectNames) {
		return rejectNames[r]
	}
	return "unknown"
}

// Framing reports whether the line looked like a report but was damaged
// on the way, which is what a garbled serial link produces.
func (r Reject) Framing() bool {
	return r == RejectFieldCount || r == RejectNumber
}

const urcFieldCount = 9

// ParseLine decodes one +UUDF report line. The boolean is false for
// anything that is not a well formed report; that is not an error.
func ParseLine(line string) (AngleSample, bool) {
	s, r := ParseLineDetailed(line)
	return s, r == RejectNone
}

// ParseLineDetailed is ParseLine with the reason a line was rejected.
//
// Wire form:
//
//	+UUDF:<id>,<rssi>,<azimuth>,<elevation>,<rssi2>,<channel>,"<anchor>","<user>",<timestamp_ms>
func ParseLineDetailed(line string) (AngleSample, Reject) {
	sep := strings.IndexByte(line, ':')
	if sep < 0 {
		return AngleSample{}, RejectPrefix
	}
	if !strings.EqualFold(line[:sep], ReportTag) {
		return AngleSample{}, RejectPrefix
	}

	fields := strings.Split(line[sep+1:], ",")
	if len(fields) != urcFieldCount {
		return AngleSample{}, RejectFieldCount
	}

	id := fields[0]
	if len(id) != EmitterIDLength {
		return AngleSample{}, RejectIdentifier
	}

	var ints [5]int
	for i := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(fields[1+i]))
		if err != nil {
			return AngleSample{}, RejectNumber
		}
		ints[i] = v
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[8]), 10, 64)
	if err != nil {
		return AngleSample{}, RejectNumber
	}

	return AngleSample{
		EmitterID:   id,
		RSSI:        ints[0],
		Azimuth:     ints[1],
		Elevation:   ints[2],
		RSSI2:       ints[3],
		Channel:     ints[4],
		AnchorID:    unquote(fields[6]),
		UserDefined: unquote(fields[7]),
		TimestampMs: ts,
	}, RejectNone
}

// Decode accepts either report format the module can be configured for:
// +UUDF URCs or the IQ debug JSON lines.
func Decode(line string) (AngleSample, Reject) {
	if strings.HasPrefix(line, debugPrefix) {
		s, err := ParseDebugJSON(line)
		switch {
		case err == nil:
			return s, RejectNone
		case errors.Is(err, ErrDebugIdentifier):
			return AngleSample{}, RejectIdentifier
		default:
			return AngleSample{}, RejectNumber
		}
	}
	return ParseLineDetailed(line)
}
