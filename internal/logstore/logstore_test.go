package logstore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/aoa_tester/internal/aoa"
	"github.com/relabs-tech/aoa_tester/internal/correlator"
	"github.com/relabs-tech/aoa_tester/internal/locate"
	"github.com/relabs-tech/aoa_tester/internal/logstore"
	"github.com/relabs-tech/aoa_tester/internal/transport"
)

func TestFileNames(t *testing.T) {
	gt := aoa.GroundTruth{Azimuth: -40, Elevation: 20}
	assert.Equal(t, "-40_20.log", logstore.FileName(gt))

	got, err := logstore.ParseFileName("/tmp/x/-40_20.log")
	require.NoError(t, err)
	assert.Equal(t, gt, got)

	for _, bad := range []string{"40_20.txt", "40.log", "a_b.log", "1_2_3.log"} {
		_, err := logstore.ParseFileName(bad)
		assert.Error(t, err, bad)
	}
}

func TestSessionDir(t *testing.T) {
	now := time.Date(2026, 3, 7, 9, 5, 0, 0, time.Local)
	assert.Equal(t, filepath.Join("out", "report_07_03_2026-09-05_antenna1"), logstore.SessionDir("out", now, "antenna1"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	gt := aoa.GroundTruth{Azimuth: 20, Elevation: -20}
	lines := []string{
		`+UUDF:F4CE5FC91A6A,-50,18,-22,0,20,"CD84C98B935D","",1000`,
		`+UUDF:0123456789AB,-61,25,-17,0,37,"CD84C98B935D","x",1100`,
		`+UUDF:F4CE5FC91A6A,-49,21,-19,0,38,"CD84C98B935D","",1200`,
	}

	live := correlator.New(locate.NewReader("a1", transport.NewReplay(lines), locate.Strict))
	want, err := live.Replay(gt)
	require.NoError(t, err)

	path, err := logstore.WriteBucket(dir, gt, want.RawLines)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20_-20.log"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, lines[0]+"\n"+lines[1]+"\n"+lines[2]+"\n", string(raw))

	data, err := logstore.ReadDir(dir)
	require.NoError(t, err)
	require.Contains(t, data, gt)

	replayed := correlator.New(locate.NewReader("a1", transport.NewReplay(data[gt]), locate.Strict))
	got, err := replayed.Replay(gt)
	require.NoError(t, err)
	assert.Equal(t, want.Order, got.Order)
	assert.Equal(t, want.ByEmitter, got.ByEmitter)
}

func TestWriteAllAndSkipForeignFiles(t *testing.T) {
	dir := t.TempDir()
	data := map[aoa.GroundTruth][]string{
		{Azimuth: -40, Elevation: -40}: {"a"},
		{Azimuth: 0, Elevation: 40}:    {"b", "c"},
		{Azimuth: 40, Elevation: 0}:    nil,
	}
	require.NoError(t, logstore.WriteAll(dir, data))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.log"), []byte("hello\n"), 0o644))

	got, err := logstore.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c"}, got[aoa.GroundTruth{Azimuth: 0, Elevation: 40}])
	assert.Empty(t, got[aoa.GroundTruth{Azimuth: 40, Elevation: 0}])
}
