package lidardb

import (
	"compress/gzip"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSession(t *testing.T, db *DB) *Session {
	t.Helper()
	s, err := db.CreateSession(SessionInfo{
		Port:     "/dev/ttyUSB0",
		BaudRate: 115200,
		Magic:    "55AA0308",
		DataSize: 480,
		Version:  "test",
	}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return s
}

func testScan(seq uint64, ranges ...float64) *publish.LaserScan {
	scan, err := publish.BuildLaserScan(
		[]float64{0, 1, 2, 3}[:len(ranges)], ranges, 300,
		time.Date(2026, 3, 1, 9, 0, 1, 250, time.UTC), publish.Options{})
	if err != nil {
		panic(err)
	}
	scan.Seq = seq
	return scan
}

func TestNewDB_MigratesAndSetsPragmas(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("schema version = %d (dirty %v), want 2 clean", version, dirty)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}
}

func TestNewDB_ReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.db")
	db1, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	s := newTestSession(t, db1)
	db1.Close()

	db2, err := NewDB(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()
	if _, err := db2.GetSession(s.ID); err != nil {
		t.Errorf("session lost across reopen: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}
	var n int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='scans'").Scan(&n)
	if err != nil || n != 0 {
		t.Errorf("scans table still present after down (n=%d, err=%v)", n, err)
	}
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	s := newTestSession(t, db)

	got, err := db.GetSession(s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	ended := s.StartedAt.Add(time.Minute)
	if err := db.EndSession(s.ID, ended, "transport fault"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	// A second end keeps the first reason.
	if err := db.EndSession(s.ID, ended.Add(time.Hour), "signal"); err != nil {
		t.Fatalf("second EndSession failed: %v", err)
	}
	got, err = db.GetSession(s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
	if got.EndReason != "transport fault" {
		t.Errorf("EndReason = %q, want transport fault", got.EndReason)
	}

	if err := db.EndSession("missing", ended, "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession(missing) err = %v, want ErrSessionNotFound", err)
	}
	if _, err := db.GetSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(missing) err = %v, want ErrSessionNotFound", err)
	}

	list, err := db.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != s.ID {
		t.Errorf("ListSessions = %+v, want one session %s", list, s.ID)
	}
}

func TestScans(t *testing.T) {
	db := newTestDB(t)
	s := newTestSession(t, db)

	first := testScan(1, 0.25, 0.5, 0.75, 2.0)
	id1, err := db.InsertScan(s.ID, first)
	if err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}
	id2, err := db.InsertScan(s.ID, testScan(2, 0.3, 0.4))
	if err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}

	rec, err := db.GetScan(id1)
	if err != nil {
		t.Fatalf("GetScan failed: %v", err)
	}
	if rec.SessionID != s.ID {
		t.Errorf("SessionID = %s, want %s", rec.SessionID, s.ID)
	}
	if diff := cmp.Diff(*first, rec.Scan); diff != "" {
		t.Errorf("stored scan mismatch (-want +got):\n%s", diff)
	}

	recent, err := db.RecentScans(10)
	if err != nil {
		t.Fatalf("RecentScans failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != id2 || recent[1].ID != id1 {
		t.Errorf("RecentScans order = %v, want [%d %d]", scanIDs(recent), id2, id1)
	}

	latest, err := db.LatestScan()
	if err != nil || latest.ID != id2 {
		t.Errorf("LatestScan = %v (%v), want id %d", latest, err, id2)
	}

	n, err := db.ScanCount(s.ID)
	if err != nil || n != 2 {
		t.Errorf("ScanCount = %d (%v), want 2", n, err)
	}
	if n, _ := db.ScanCount("other"); n != 0 {
		t.Errorf("ScanCount(other) = %d, want 0", n)
	}

	if _, err := db.GetScan(999); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("GetScan(999) err = %v, want ErrScanNotFound", err)
	}
	if _, err := db.InsertScan(s.ID, &publish.LaserScan{}); !errors.Is(err, publish.ErrEmptyScan) {
		t.Errorf("InsertScan(empty) err = %v, want ErrEmptyScan", err)
	}
}

func TestLatestScan_Empty(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.LatestScan(); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("LatestScan err = %v, want ErrScanNotFound", err)
	}
}

func TestInsertScan_UnknownSession(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.InsertScan("no-such-session", testScan(1, 0.5)); err == nil {
		t.Error("expected foreign key violation for unknown session")
	}
}

func scanIDs(recs []ScanRecord) []int64 {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func TestFloat64Blob(t *testing.T) {
	in := []float64{0, -1.5, math.Pi, math.Inf(1), 1e-300}
	blob := EncodeFloat64s(in)
	if len(blob) != 8*len(in) {
		t.Fatalf("blob length = %d, want %d", len(blob), 8*len(in))
	}
	// 1.0 little-endian is 00 00 00 00 00 00 F0 3F
	one := EncodeFloat64s([]float64{1})
	if one[6] != 0xF0 || one[7] != 0x3F {
		t.Errorf("EncodeFloat64s(1) = % X, want little-endian IEEE 754", one)
	}
	out, err := DecodeFloat64s(blob)
	if err != nil {
		t.Fatalf("DecodeFloat64s failed: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("blob mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodeFloat64s(make([]byte, 7)); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestRecorder_RateLimit(t *testing.T) {
	db := newTestDB(t)
	s := newTestSession(t, db)
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	rec := NewRecorder(db, s.ID, time.Second, clock)

	for i := 0; i < 10; i++ {
		if err := rec.PublishScan(testScan(uint64(i), 0.5)); err != nil {
			t.Fatalf("PublishScan failed: %v", err)
		}
		clock.Advance(250 * time.Millisecond)
	}

	// Scans at t=0s, 1s, 2s are written.
	stats := rec.Stats()
	if stats.Written != 3 || stats.Skipped != 7 {
		t.Errorf("stats = %+v, want 3 written 7 skipped", stats)
	}
	if n, _ := db.ScanCount(s.ID); n != 3 {
		t.Errorf("ScanCount = %d, want 3", n)
	}
	if rec.SessionID() != s.ID {
		t.Errorf("SessionID() = %s, want %s", rec.SessionID(), s.ID)
	}
}

func TestRecorder_ZeroIntervalWritesAll(t *testing.T) {
	db := newTestDB(t)
	s := newTestSession(t, db)
	rec := NewRecorder(db, s.ID, 0, timeutil.NewMockClock(time.Unix(0, 0)))
	for i := 0; i < 4; i++ {
		_ = rec.PublishScan(testScan(uint64(i), 0.5))
	}
	if got := rec.Stats().Written; got != 4 {
		t.Errorf("Written = %d, want 4", got)
	}

	if err := rec.PublishScan(&publish.LaserScan{}); err == nil {
		t.Error("expected error for empty scan")
	}
	if got := rec.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	newTestSession(t, db)

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/backup")
	if err != nil {
		t.Fatalf("GET /debug/backup failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if len(data) < 16 || string(data[:15]) != "SQLite format 3" {
		t.Errorf("backup does not look like a sqlite database (%d bytes)", len(data))
	}
}
