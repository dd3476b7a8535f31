package correlator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

func urc(id string, az, el int, ts int64) string {
	return aoa.AngleSample{EmitterID: id, RSSI: -50, Azimuth: az, Elevation: el, Channel: 37, AnchorID: "CD84C98B935D", TimestampMs: ts}.URC()
}

const (
	tagA = "F4CE5FC91A6A"
	tagB = "0123456789AB"
)

func TestReplayKeepsPerEmitterOrder(t *testing.T) {
	lines := []string{
		urc(tagA, 1, 0, 1),
		urc(tagB, 2, 0, 2),
		"+UUDF:junk",
		urc(tagA, 3, 0, 3),
		urc(tagB, 4, 0, 4),
		urc(tagA, 5, 0, 5),
	}
	c := New(locate.NewReader("a1", transport.NewReplay(lines), locate.Strict))
	gt := aoa.GroundTruth{Azimuth: 20, Elevation: -20}

	b, err := c.Replay(gt)
	require.NoError(t, err)
	assert.Equal(t, []string{tagA, tagB}, b.Order)
	assert.Len(t, b.RawLines, 5)
	assert.Equal(t, lines[0], b.RawLines[0])

	var az []int
	for _, s := range b.ByEmitter[tagA] {
		az = append(az, s.Azimuth)
	}
	assert.Equal(t, []int{1, 3, 5}, az)
	assert.Same(t, b, c.Data()[gt])
}

func TestCollectRateAndWindow(t *testing.T) {
	const (
		interval    = 50 * time.Millisecond
		window      = 500 * time.Millisecond
		readTimeout = 100 * time.Millisecond
	)
	tr := locate.NewMockTransport(locate.MockOptions{Interval: interval, ReadTimeout: readTimeout})
	c := New(locate.NewReader("mock", tr, locate.Strict))

	start := time.Now()
	b, err := c.Collect(context.Background(), window, aoa.GroundTruth{})
	elapsed := time.Since(start)
	require.NoError(t, err)

	want := int(window / interval)
	assert.InDelta(t, want, b.Len(), 1)
	assert.GreaterOrEqual(t, elapsed, window)
	assert.Less(t, elapsed, window+readTimeout+50*time.Millisecond)
}

func TestRestartAbortsWindowAndKeepsEarlierBuckets(t *testing.T) {
	dev := transport.NewMemory(20 * time.Millisecond)
	c := New(locate.NewReader("a1", dev, locate.Strict))
	first := aoa.GroundTruth{Azimuth: -40, Elevation: -40}
	second := aoa.GroundTruth{Azimuth: -20, Elevation: -40}

	dev.Feed(urc(tagA, -38, -41, 1), urc(tagA, -41, -39, 2))
	_, err := c.Collect(context.Background(), 100*time.Millisecond, first)
	require.NoError(t, err)

	dev.Feed(urc(tagA, -19, -40, 3), locate.StartupMarker, urc(tagA, -21, -40, 4))
	start := time.Now()
	b, err := c.Collect(context.Background(), 2*time.Second, second)
	assert.ErrorIs(t, err, locate.ErrDeviceRestarted)
	assert.Nil(t, b)
	assert.Less(t, time.Since(start), time.Second)

	data := c.Data()
	require.Contains(t, data, first)
	assert.NotContains(t, data, second)
	assert.Equal(t, 2, data[first].Len())
}

func TestCancelStopsCollectionAndStores(t *testing.T) {
	dev := transport.NewMemory(20 * time.Millisecond)
	c := New(locate.NewReader("a1", dev, locate.Strict))
	gt := aoa.GroundTruth{Azimuth: 40}
	dev.Feed(urc(tagA, 41, 0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	b, err := c.Collect(ctx, 5*time.Second, gt)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, b.Len())
	assert.Contains(t, c.Data(), gt)
}

func TestSameGroundTruthReplacesBucket(t *testing.T) {
	dev := transport.NewMemory(10 * time.Millisecond)
	c := New(locate.NewReader("a1", dev, locate.Strict))
	gt := aoa.GroundTruth{}

	dev.Feed(urc(tagA, 1, 0, 1), urc(tagA, 2, 0, 2))
	_, err := c.Collect(context.Background(), 50*time.Millisecond, gt)
	require.NoError(t, err)

	dev.Feed(urc(tagA, 3, 0, 3))
	_, err = c.Collect(context.Background(), 50*time.Millisecond, gt)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Data()[gt].Len())
}

func TestKeysSortedAndClear(t *testing.T) {
	c := New(locate.NewReader("a1", transport.NewReplay(nil), locate.Strict))
	for _, gt := range []aoa.GroundTruth{{Azimuth: 20, Elevation: 0}, {Azimuth: -40, Elevation: 20}, {Azimuth: -40, Elevation: -40}} {
		_, err := c.Replay(gt)
		require.NoError(t, err)
	}
	assert.Equal(t, []aoa.GroundTruth{{Azimuth: -40, Elevation: -40}, {Azimuth: -40, Elevation: 20}, {Azimuth: 20, Elevation: 0}}, c.Keys())

	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestOnSampleHook(t *testing.T) {
	c := New(locate.NewReader("a1", transport.NewReplay([]string{urc(tagA, 5, 6, 1)}), locate.Strict))
	var got []string
	c.OnSample(func(anchor string, gt aoa.GroundTruth, ev aoa.Event) {
		got = append(got, fmt.Sprintf("%s %s %d", anchor, gt, ev.Sample.Azimuth))
	})

	_, err := c.Replay(aoa.GroundTruth{Azimuth: 0, Elevation: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1 0_20 5"}, got)
}

func TestSupervisorCollectsEveryAnchor(t *testing.T) {
	readTimeout := 50 * time.Millisecond
	var cs []*Correlator
	for i := 0; i < 3; i++ {
		tr := locate.NewMockTransport(locate.MockOptions{Interval: 20 * time.Millisecond, ReadTimeout: readTimeout})
		cs = append(cs, New(locate.NewReader(fmt.Sprintf("anchor%d", i), tr, locate.Strict)))
	}
	s := NewSupervisor(readTimeout, cs...)

	buckets, err := s.CollectAll(context.Background(), 200*time.Millisecond, aoa.GroundTruth{Azimuth: 20})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	for name, b := range buckets {
		assert.Greater(t, b.Len(), 0, name)
	}

	s.Clear()
	for _, c := range s.Correlators() {
		assert.Empty(t, c.Keys())
	}
}

func TestSupervisorFailureCancelsOthers(t *testing.T) {
	readTimeout := 20 * time.Millisecond
	healthy := locate.NewMockTransport(locate.MockOptions{Interval: 20 * time.Millisecond, ReadTimeout: readTimeout})
	crashing := transport.NewMemory(readTimeout)
	crashing.Feed(locate.StartupMarker)

	s := NewSupervisor(readTimeout,
		New(locate.NewReader("healthy", healthy, locate.Strict)),
		New(locate.NewReader("crashing", crashing, locate.Strict)),
	)

	start := time.Now()
	_, err := s.CollectAll(context.Background(), 3*time.Second, aoa.GroundTruth{})
	assert.ErrorIs(t, err, locate.ErrDeviceRestarted)
	assert.Contains(t, err.Error(), "crashing")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSupervisorRestartKeepsCompletedBuckets(t *testing.T) {
	readTimeout := 20 * time.Millisecond
	healthy := transport.NewMemory(readTimeout)
	crashing := transport.NewMemory(readTimeout)
	hc := New(locate.NewReader("healthy", healthy, locate.Strict))
	cc := New(locate.NewReader("crashing", crashing, locate.Strict))
	s := NewSupervisor(readTimeout, hc, cc)
	gt := aoa.GroundTruth{Azimuth: 20}

	healthy.Feed(urc(tagA, 20, 0, 1), urc(tagA, 21, 0, 2), urc(tagA, 19, 0, 3))
	crashing.Feed(urc(tagB, 20, 0, 1), urc(tagB, 20, 0, 2), urc(tagB, 20, 0, 3))
	_, err := s.CollectAll(context.Background(), 100*time.Millisecond, gt)
	require.NoError(t, err)
	require.Equal(t, 3, hc.Data()[gt].Len())

	// revisit gt; the sibling restarts partway through
	healthy.Feed(urc(tagA, 20, 0, 4))
	time.AfterFunc(50*time.Millisecond, func() { crashing.Feed(locate.StartupMarker) })
	_, err = s.CollectAll(context.Background(), time.Second, gt)
	require.ErrorIs(t, err, locate.ErrDeviceRestarted)
	assert.Equal(t, 3, hc.Data()[gt].Len())
	assert.Equal(t, 3, cc.Data()[gt].Len())

	// first visit of another orientation leaves nothing behind
	next := aoa.GroundTruth{Azimuth: 40}
	healthy.Feed(urc(tagA, 40, 0, 5))
	crashing.Feed(locate.StartupMarker)
	_, err = s.CollectAll(context.Background(), time.Second, next)
	require.ErrorIs(t, err, locate.ErrDeviceRestarted)
	assert.NotContains(t, hc.Data(), next)
	assert.Equal(t, []aoa.GroundTruth{gt}, hc.Keys())
}
