package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/config"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/logstore"
	"github.com/relabs-tech/aoa_tester/internal/report"
)

func simulatedConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.PositionerTransport = config.TransportMock
	cfg.LocatePorts = []string{config.MockPort}
	cfg.LocateReadTimeoutMs = 200
	cfg.SettleMs = 0
	cfg.WindowMs = 350
	cfg.SweepAzimuthStart, cfg.SweepAzimuthEnd, cfg.SweepAzimuthStep = 0, 20, 20
	cfg.SweepElevationStart, cfg.SweepElevationEnd, cfg.SweepElevationStep = 0, 0, 10
	cfg.ReportDir = t.TempDir()
	return cfg
}

func sample(az, el int) string {
	return aoa.AngleSample{
		EmitterID: "6C1DEBA41680",
		RSSI:      -42,
		Azimuth:   az,
		Elevation: el,
		RSSI2:     -43,
		Channel:   37,
		AnchorID:  "CCF9578E0D8A",
	}.URC()
}

func TestRunSweepSimulatedRig(t *testing.T) {
	cfg := simulatedConfig(t)

	require.NoError(t, RunSweep(context.Background(), cfg))

	dirs, err := filepath.Glob(filepath.Join(cfg.ReportDir, "report_*_antenna1"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	for _, name := range []string{"0_0.log", "20_0.log", "summary.txt", "summary.json", "F4CE5FC91A6A_errors.png"} {
		assert.FileExists(t, filepath.Join(dirs[0], name))
	}

	raw, err := os.ReadFile(filepath.Join(dirs[0], "summary.json"))
	require.NoError(t, err)
	var s report.Summary
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "antenna1", s.Anchor)
	assert.True(t, s.Passed)
	assert.Len(t, s.Buckets, 2)

	data, err := ReplayDir(dirs[0], locate.Strict)
	require.NoError(t, err)
	assert.Equal(t, []aoa.GroundTruth{{Azimuth: 0}, {Azimuth: 20}}, correlator.SortedKeys(data))
}

func TestRunReplayWritesReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "antenna1")
	_, err := logstore.WriteBucket(dir, aoa.GroundTruth{Azimuth: 0, Elevation: 0},
		[]string{sample(1, 0), sample(-2, 1), "garbage", sample(0, 0)})
	require.NoError(t, err)
	_, err = logstore.WriteBucket(dir, aoa.GroundTruth{Azimuth: 20, Elevation: 0},
		[]string{sample(21, 2), sample(19, -1)})
	require.NoError(t, err)

	cfg := config.Defaults()
	var out bytes.Buffer
	require.NoError(t, RunReplay(cfg, []string{dir}, &out))

	assert.Contains(t, out.String(), "Result: PASS")
	assert.FileExists(t, filepath.Join(dir, "summary.txt"))
	assert.FileExists(t, filepath.Join(dir, "summary.json"))
	assert.FileExists(t, filepath.Join(dir, "6C1DEBA41680_errors.png"))

	data, err := ReplayDir(dir, locate.Strict)
	require.NoError(t, err)
	assert.Equal(t, 3, data[aoa.GroundTruth{}].Len())
	assert.Equal(t, 2, data[aoa.GroundTruth{Azimuth: 20}].Len())
}

func TestRunReplayEmptyDir(t *testing.T) {
	err := RunReplay(config.Defaults(), []string{t.TempDir()}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no log files")
}

func TestRunReplayRejectsRestartInStrictMode(t *testing.T) {
	dir := t.TempDir()
	_, err := logstore.WriteBucket(dir, aoa.GroundTruth{}, []string{sample(0, 0), locate.StartupMarker, sample(0, 0)})
	require.NoError(t, err)

	cfg := config.Defaults()
	err = RunReplay(cfg, []string{dir}, &bytes.Buffer{})
	assert.ErrorIs(t, err, locate.ErrDeviceRestarted)

	cfg.ReplayMode = "lenient"
	require.NoError(t, RunReplay(cfg, []string{dir}, &bytes.Buffer{}))
}

func TestRunJogSimulated(t *testing.T) {
	cfg := simulatedConfig(t)

	var out bytes.Buffer
	require.NoError(t, RunJog(cfg, JogAzimuth, 30, &out))
	assert.Equal(t, "OK\n", out.String())

	out.Reset()
	require.NoError(t, RunJog(cfg, JogAngle, 0, &out))
	assert.Equal(t, "azimuth: 0\nOK\n", out.String())

	assert.ErrorContains(t, RunJog(cfg, "spin", 0, &out), "unknown jog action")
}

func TestRunListenSimulated(t *testing.T) {
	cfg := simulatedConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, RunListen(ctx, cfg, &out, 100*time.Millisecond))

	assert.Contains(t, out.String(), "Tracked tag: F4CE5FC91A6A")
	assert.Contains(t, out.String(), "CD84C98B935D")
}

func TestFormatMessages(t *testing.T) {
	s := aoa.AngleSample{EmitterID: "6C1DEBA41680", Azimuth: 12, Elevation: -3, RSSI: -40, Channel: 37}
	line := formatSample(SampleMessage{Anchor: "antenna1", Sample: s})
	assert.Contains(t, line, "gt=-")
	assert.Contains(t, line, "tag=6C1DEBA41680")

	gt := aoa.GroundTruth{Azimuth: 20, Elevation: -20}
	line = formatSample(SampleMessage{Anchor: "antenna1", GroundTruth: &gt, Sample: s})
	assert.Contains(t, line, "gt=20_-20")

	b := formatBucket(BucketMessage{
		Anchor:      "antenna1",
		GroundTruth: gt,
		Samples:     70,
		Emitters: []report.EmitterResult{{
			EmitterID: "6C1DEBA41680",
			Azimuth:   report.AxisStats{PassRate: 1},
			Elevation: report.AxisStats{PassRate: 0.5},
		}},
	})
	assert.True(t, strings.HasPrefix(b, "[BUCKET] antenna1 gt=20_-20 samples=70"))
	assert.Contains(t, b, "az 100% el 50% FAIL")
}

func TestWebAPI(t *testing.T) {
	state := newWebState()
	srv := httptest.NewServer(state.routes(t.TempDir()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/anchors")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	state.addBucket(BucketMessage{Anchor: "antenna2", GroundTruth: aoa.GroundTruth{Azimuth: 20}, Samples: 3})
	state.addBucket(BucketMessage{Anchor: "antenna1", GroundTruth: aoa.GroundTruth{Azimuth: 20}, Samples: 2})
	state.addBucket(BucketMessage{Anchor: "antenna1", GroundTruth: aoa.GroundTruth{Azimuth: -20}, Samples: 1})

	resp, err = http.Get(srv.URL + "/api/buckets")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buckets []BucketMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&buckets))
	require.Len(t, buckets, 3)
	assert.Equal(t, "antenna1", buckets[0].Anchor)
	assert.Equal(t, -20, buckets[0].GroundTruth.Azimuth)
	assert.Equal(t, "antenna2", buckets[2].Anchor)
}

func TestWebSampleStream(t *testing.T) {
	state := newWebState()
	srv := httptest.NewServer(state.routes(t.TempDir()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/samples"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		state.clientsMu.Lock()
		defer state.clientsMu.Unlock()
		return len(state.clients) == 1
	}, time.Second, 10*time.Millisecond)

	msg := SampleMessage{Anchor: "antenna1", Sample: aoa.AngleSample{EmitterID: "6C1DEBA41680", Azimuth: 7}}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	state.addSample(msg, payload)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))
	assert.Len(t, state.anchorList(), 1)
}
