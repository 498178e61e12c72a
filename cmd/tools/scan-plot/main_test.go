package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rangescan/internal/httputil"
	"github.com/banshee-data/rangescan/internal/lidar/lidardb"
	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

func ringScan(t *testing.T, radius float64) *publish.LaserScan {
	t.Helper()
	n := 64
	angles := make([]float64, n)
	ranges := make([]float64, n)
	for i := range angles {
		angles[i] = 2 * math.Pi * float64(i) / float64(n)
		ranges[i] = radius
	}
	scan, err := publish.BuildLaserScan(angles, ranges, 300, time.Unix(1700000000, 0), publish.Options{})
	require.NoError(t, err)
	return scan
}

func seedDB(t *testing.T) (string, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.db")
	db, err := lidardb.NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	sess, err := db.CreateSession(lidardb.SessionInfo{Port: "/dev/ttyUSB0", BaudRate: 115200}, time.Now())
	require.NoError(t, err)
	first, err := db.InsertScan(sess.ID, ringScan(t, 1))
	require.NoError(t, err)
	_, err = db.InsertScan(sess.ID, ringScan(t, 2))
	require.NoError(t, err)
	return path, first
}

func readHeader(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(b), len(pngHeader))
	return b
}

func TestRun_FromDatabase(t *testing.T) {
	dbPath, firstID := seedDB(t)
	dir := t.TempDir()

	latest := filepath.Join(dir, "latest.png")
	require.NoError(t, run(context.Background(), options{DBPath: dbPath, Out: latest, SizePx: 200}, nil))
	assert.True(t, bytes.HasPrefix(readHeader(t, latest), pngHeader))

	byID := filepath.Join(dir, "first.png")
	require.NoError(t, run(context.Background(), options{DBPath: dbPath, ScanID: firstID, Out: byID, SizePx: 200}, nil))
	assert.True(t, bytes.HasPrefix(readHeader(t, byID), pngHeader))
}

func TestRun_MissingScan(t *testing.T) {
	dbPath, _ := seedDB(t)
	err := run(context.Background(), options{DBPath: dbPath, ScanID: 9999, Out: filepath.Join(t.TempDir(), "x.png"), SizePx: 100}, nil)
	assert.True(t, errors.Is(err, lidardb.ErrScanNotFound), "err = %v", err)
}

func TestRun_FromURL(t *testing.T) {
	body, err := json.Marshal(ringScan(t, 3))
	require.NoError(t, err)
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, string(body))

	out := filepath.Join(t.TempDir(), "live.html")
	require.NoError(t, run(context.Background(), options{URL: "http://pi.local:8080/", Out: out, SizePx: 100}, mock))

	require.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, "/api/scan", mock.Requests[0].URL.Path)
	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "echarts"))
}

func TestRun_URLNotReady(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusNotFound, `{"error":"no scan available yet"}`)
	err := run(context.Background(), options{URL: "http://pi.local:8080", Out: filepath.Join(t.TempDir(), "x.png"), SizePx: 100}, mock)

	var se *httputil.StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestRun_ValidatesOptions(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.png")
	assert.Error(t, run(context.Background(), options{Out: out, SizePx: 100}, nil))
	assert.Error(t, run(context.Background(), options{DBPath: "a.db", URL: "http://x", Out: out, SizePx: 100}, nil))
	assert.Error(t, run(context.Background(), options{DBPath: "a.db", Out: out}, nil))
	assert.Error(t, run(context.Background(), options{DBPath: filepath.Join(t.TempDir(), "missing.db"), Out: out, SizePx: 100}, nil))
}
