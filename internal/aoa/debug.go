package aoa

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const debugPrefix = `{"id"`

// IQSampleCount is the number of I/Q pairs carried by one debug report.
const IQSampleCount = 82

var (
	ErrDebugFormat     = errors.New("aoa: malformed debug report")
	ErrDebugIdentifier = errors.New("aoa: debug report identifier is not 12 characters")
	ErrIQCount         = errors.New("aoa: wrong amount of IQs")
)

// ParseDebugJSON decodes the raw IQ debug report the module emits when
// debug mode is on, e.g.
//
//	{"id":"F4CE5FC91A6A","rssi":-50,"est":[12.4,33.6],"est_raw":[11.0,35.2],"ch":20,"a_id":"CD84C98B935D","ms":238777,"iq_b64":"..."}
func ParseDebugJSON(line string) (AngleSample, error) {
	if !gjson.Valid(line) {
		return AngleSample{}, ErrDebugFormat
	}
	r := gjson.GetMany(line, "id", "rssi", "est.0", "est.1", "est_raw.0", "est_raw.1", "ch", "a_id", "ms", "iq_b64")
	for _, v := range r {
		if !v.Exists() {
			return AngleSample{}, ErrDebugFormat
		}
	}

	id := strings.ReplaceAll(r[0].String(), `"`, "")
	if len(id) != EmitterIDLength {
		return AngleSample{}, ErrDebugIdentifier
	}

	iq, err := decodeIQ(r[9].String())
	if err != nil {
		return AngleSample{}, err
	}

	return AngleSample{
		EmitterID:    id,
		RSSI:         int(r[1].Int()),
		Azimuth:      roundDeg(r[2].Float()),
		Elevation:    roundDeg(r[3].Float()),
		AzimuthRaw:   roundDeg(r[4].Float()),
		ElevationRaw: roundDeg(r[5].Float()),
		Channel:      int(r[6].Int()),
		AnchorID:     unquote(r[7].String()),
		TimestampMs:  r[8].Int(),
		IQ:           iq,
	}, nil
}

func decodeIQ(b64 string) ([]int8, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: iq_b64: %v", ErrDebugFormat, err)
	}
	if len(raw) != IQSampleCount*2 {
		return nil, fmt.Errorf("%w: got %d values", ErrIQCount, len(raw))
	}
	iq := make([]int8, len(raw))
	for i, b := range raw {
		iq[i] = int8(b)
	}
	return iq, nil
}

func roundDeg(v float64) int {
	return int(math.RoundToEven(v))
}
