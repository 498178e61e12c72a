package lidardb

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

// ErrScanNotFound is returned when a scan id does not exist.
var ErrScanNotFound = errors.New("scan not found")

// ScanRecord is a stored scan.
type ScanRecord struct {
	ID        int64             `json:"scan_id"`
	SessionID string            `json:"session_id"`
	Scan      publish.LaserScan `json:"scan"`
}

// InsertScan stores scan under the given session and returns its id.
func (db *DB) InsertScan(sessionID string, scan *publish.LaserScan) (int64, error) {
	if scan == nil || len(scan.Ranges) == 0 {
		return 0, publish.ErrEmptyScan
	}
	if len(scan.Angles) != 0 && len(scan.Angles) != len(scan.Ranges) {
		return 0, fmt.Errorf("scan has %d angles for %d ranges", len(scan.Angles), len(scan.Ranges))
	}
	var anglesBlob []byte
	if len(scan.Angles) > 0 {
		anglesBlob = EncodeFloat64s(scan.Angles)
	}
	var valid int
	var mean float64
	if scan.Stats != nil {
		valid, mean = scan.Stats.Valid, scan.Stats.Mean
	}
	res, err := db.Exec(`INSERT INTO scans
		(session_id, seq, stamp_unix_nanos, frame_id, angle_min, angle_max, angle_increment,
		 scan_time, range_min, range_max, sample_count, valid_count, mean_range, ranges_blob, angles_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(scan.Seq), scan.Stamp.UnixNano(), scan.FrameID,
		scan.AngleMin, scan.AngleMax, scan.AngleIncrement, scan.ScanTime,
		scan.RangeMin, scan.RangeMax, len(scan.Ranges), valid, mean,
		EncodeFloat64s(scan.Ranges), anglesBlob)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan: %w", err)
	}
	return res.LastInsertId()
}

const scanColumns = `scan_id, session_id, seq, stamp_unix_nanos, frame_id, angle_min, angle_max,
	angle_increment, scan_time, range_min, range_max, ranges_blob, angles_blob`

// GetScan returns the scan with the given id.
func (db *DB) GetScan(id int64) (*ScanRecord, error) {
	row := db.QueryRow(`SELECT `+scanColumns+` FROM scans WHERE scan_id = ?`, id)
	rec, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrScanNotFound, id)
	}
	return rec, err
}

// LatestScan returns the most recently stored scan of any session.
func (db *DB) LatestScan() (*ScanRecord, error) {
	row := db.QueryRow(`SELECT ` + scanColumns + ` FROM scans ORDER BY scan_id DESC LIMIT 1`)
	rec, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	return rec, err
}

// RecentScans returns up to limit scans, newest first.
func (db *DB) RecentScans(limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(`SELECT `+scanColumns+` FROM scans ORDER BY scan_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scans: %w", err)
	}
	defer rows.Close()

	var recs []ScanRecord
	for rows.Next() {
		rec, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// ScanCount returns the number of scans stored for a session.
func (db *DB) ScanCount(sessionID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM scans WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

func scanScan(r rowScanner) (*ScanRecord, error) {
	var (
		rec   ScanRecord
		seq   int64
		stamp int64
		blob  []byte
		ablob []byte
	)
	s := &rec.Scan
	if err := r.Scan(&rec.ID, &rec.SessionID, &seq, &stamp, &s.FrameID,
		&s.AngleMin, &s.AngleMax, &s.AngleIncrement, &s.ScanTime,
		&s.RangeMin, &s.RangeMax, &blob, &ablob); err != nil {
		return nil, err
	}
	ranges, err := DecodeFloat64s(blob)
	if err != nil {
		return nil, fmt.Errorf("scan %d: %w", rec.ID, err)
	}
	if len(ablob) > 0 {
		if s.Angles, err = DecodeFloat64s(ablob); err != nil {
			return nil, fmt.Errorf("scan %d angles: %w", rec.ID, err)
		}
	}
	s.Seq = uint64(seq)
	s.Stamp = time.Unix(0, stamp).UTC()
	s.Ranges = ranges
	stats := publish.ComputeStats(ranges, s.RangeMin, s.RangeMax)
	s.Stats = &stats
	return &rec, nil
}

// EncodeFloat64s packs values as consecutive little-endian IEEE 754 doubles.
func EncodeFloat64s(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64s reverses EncodeFloat64s.
func DecodeFloat64s(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("float64 blob length %d is not a multiple of 8", len(buf))
	}
	values := make([]float64, len(buf)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}
