package report

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
)

const (
	tagA = "F4CE5FC91A6A"
	tagB = "0123456789AB"
)

func bucket(gt aoa.GroundTruth, samples ...aoa.AngleSample) *correlator.Bucket {
	b := correlator.NewBucket(gt)
	for _, s := range samples {
		b.Add(aoa.Event{Line: s.URC(), Sample: s})
	}
	return b
}

func sample(id string, az, el int) aoa.AngleSample {
	return aoa.AngleSample{EmitterID: id, Azimuth: az, Elevation: el, AnchorID: "CD84C98B935D"}
}

func TestErrorsAndInversion(t *testing.T) {
	b := bucket(aoa.GroundTruth{Azimuth: 20, Elevation: -20},
		sample(tagB, 25, -18),
		sample(tagA, 18, -20),
		sample(tagB, 20, -30),
	)

	assert.Equal(t, []ErrorRecord{
		{EmitterID: tagB, AzimuthError: 5, ElevationError: 2},
		{EmitterID: tagB, AzimuthError: 0, ElevationError: -10},
		{EmitterID: tagA, AzimuthError: -2, ElevationError: 0},
	}, Errors(b, false))

	inv := Errors(b, true)
	assert.Equal(t, -5, inv[0].AzimuthError)
	assert.Equal(t, -2, inv[0].ElevationError)
	assert.Equal(t, 10, inv[1].ElevationError)
}

func TestPassRate(t *testing.T) {
	assert.Equal(t, 0.0, PassRate(nil, 10))
	assert.Equal(t, 0.75, PassRate([]int{-10, 10, 3, 11}, 10))
}

func TestEvaluate(t *testing.T) {
	st := Evaluate([]int{2, 4, 4, 4, 5, 5, 7, 9}, DefaultThresholds())
	assert.Equal(t, 8, st.Count)
	assert.InDelta(t, 5.0, st.Mean, 1e-9)
	assert.InDelta(t, 2.0, st.StdDev, 1e-9)
	assert.Equal(t, 2, st.MinError)
	assert.Equal(t, 9, st.MaxError)
	assert.True(t, st.Passed)

	st = Evaluate([]int{0, 0, 0, 0, 0, 0, 0, 0, 20, 20}, DefaultThresholds())
	assert.InDelta(t, 0.8, st.PassRate, 1e-9)
	assert.False(t, st.Passed)
}

func TestFilter(t *testing.T) {
	f := Filter{MaxAngle: 30, DropNinety: true}
	assert.True(t, f.KeepGroundTruth(aoa.GroundTruth{Azimuth: 40, Elevation: 20}))
	assert.False(t, f.KeepGroundTruth(aoa.GroundTruth{Azimuth: 40, Elevation: -40}))
	assert.True(t, Filter{}.KeepGroundTruth(aoa.GroundTruth{Azimuth: 80, Elevation: 80}))

	assert.False(t, f.KeepSample(sample(tagA, 90, 0)))
	assert.False(t, f.KeepSample(sample(tagA, 0, -90)))
	assert.True(t, f.KeepSample(sample(tagA, 89, 0)))
}

func TestSummarize(t *testing.T) {
	data := map[aoa.GroundTruth]*correlator.Bucket{}
	for _, gt := range []aoa.GroundTruth{{Azimuth: 20}, {Azimuth: -20}, {Azimuth: 60, Elevation: 60}} {
		data[gt] = bucket(gt,
			sample(tagA, gt.Azimuth+1, gt.Elevation-1),
			sample(tagB, gt.Azimuth+15, gt.Elevation),
			sample(tagA, 90, 90),
		)
	}
	a := Analyzer{Thresholds: DefaultThresholds(), Filter: Filter{MaxAngle: 40, DropNinety: true}}

	s := a.Summarize("antenna1", data)
	require.Len(t, s.Buckets, 2)
	assert.Equal(t, aoa.GroundTruth{Azimuth: -20}, s.Buckets[0].GroundTruth)
	assert.Equal(t, 2, s.Buckets[0].Samples)

	require.Len(t, s.Combined, 2)
	assert.Equal(t, tagA, s.Combined[0].EmitterID)
	assert.True(t, s.Combined[0].Passed)
	assert.Equal(t, tagB, s.Combined[1].EmitterID)
	assert.False(t, s.Combined[1].Azimuth.Passed)
	assert.True(t, s.Combined[1].Elevation.Passed)
	assert.False(t, s.Passed)
	assert.Len(t, s.Errors(tagA), 2)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Analyzer{Thresholds: DefaultThresholds()}.Summarize("a", nil)
	assert.False(t, s.Passed)
	assert.Empty(t, s.Combined)
}

func TestCombine(t *testing.T) {
	a := Analyzer{}
	got := a.Combine(
		bucket(aoa.GroundTruth{}, sample(tagA, 1, 1)),
		bucket(aoa.GroundTruth{Azimuth: 20}, sample(tagA, 22, 0), sample(tagB, 20, 0)),
	)
	assert.Len(t, got[tagA], 2)
	assert.Len(t, got[tagB], 1)
}

func TestWriters(t *testing.T) {
	data := map[aoa.GroundTruth]*correlator.Bucket{
		{}: bucket(aoa.GroundTruth{}, sample(tagA, 1, -1), sample(tagA, -2, 3)),
	}
	s := Analyzer{Thresholds: DefaultThresholds(), Invert: true}.Summarize("antenna2", data)

	var txt bytes.Buffer
	require.NoError(t, WriteText(&txt, s))
	assert.Contains(t, txt.String(), "antenna2")
	assert.Contains(t, txt.String(), "upside down")
	assert.Contains(t, txt.String(), tagA)
	assert.Contains(t, txt.String(), "Result: PASS")

	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, s))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "antenna2", decoded["anchor"])
	assert.Equal(t, true, decoded["passed"])

	var img bytes.Buffer
	require.NoError(t, WritePNG(&img, "antenna2", s.Errors(tagA), s.Thresholds))
	decodedImg, err := png.Decode(&img)
	require.NoError(t, err)
	assert.Equal(t, imageWidth, decodedImg.Bounds().Dx())
}

func TestHistogramEdges(t *testing.T) {
	h := histogram([]int{-100, -30, 0, 1, 29, 30, 100})
	assert.Equal(t, 2, h[0])
	assert.Equal(t, 2, h[histRange/histBin])
	assert.Equal(t, 3, h[histBins-1])
}

func TestRunning(t *testing.T) {
	r := NewRunning("")
	for _, az := range []int{10, 20, 30} {
		s := sample(tagA, az, -az)
		s.AnchorID = "anchor1"
		assert.True(t, r.Add(s))
	}
	other := sample(tagB, 0, 0)
	other.AnchorID = "anchor2"
	r.Add(other)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "anchor1", snap[0].AnchorID)
	assert.Equal(t, 3, snap[0].Count)
	assert.InDelta(t, 20, snap[0].MeanAzimuth, 1e-9)
	assert.InDelta(t, -20, snap[0].MeanElevation, 1e-9)
	assert.InDelta(t, math.Sqrt(200.0/3), snap[0].StdAzimuth, 1e-9)
	assert.Equal(t, 30, snap[0].LastAzimuth)
	assert.Equal(t, tagA, r.Tracked())

	filtered := NewRunning(tagB)
	assert.False(t, filtered.Add(sample(tagA, 1, 1)))
	assert.True(t, filtered.Add(sample(tagB, 1, 1)))
	assert.Equal(t, tagB, filtered.Tracked())

	var buf bytes.Buffer
	require.NoError(t, r.WriteTable(&buf))
	assert.Contains(t, buf.String(), "anchor1")
}
