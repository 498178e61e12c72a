package lidardb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

// Recorder is a publish.Sink that stores at most one scan per interval.
type Recorder struct {
	db        *DB
	sessionID string
	interval  time.Duration
	clock     timeutil.Clock

	mu      sync.Mutex
	last    time.Time
	hasLast bool

	written atomic.Uint64
	skipped atomic.Uint64
	errors  atomic.Uint64
}

var _ publish.Sink = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to sessionID. An interval of zero
// stores every scan.
func NewRecorder(db *DB, sessionID string, interval time.Duration, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{db: db, sessionID: sessionID, interval: interval, clock: clock}
}

// PublishScan implements publish.Sink.
func (r *Recorder) PublishScan(scan *publish.LaserScan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.hasLast && now.Sub(r.last) < r.interval {
		r.skipped.Add(1)
		return nil
	}
	if _, err := r.db.InsertScan(r.sessionID, scan); err != nil {
		r.errors.Add(1)
		return err
	}
	r.last, r.hasLast = now, true
	r.written.Add(1)
	return nil
}

// SessionID returns the session scans are written under.
func (r *Recorder) SessionID() string { return r.sessionID }

// RecorderStats counts what the Recorder did with published scans.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Skipped uint64 `json:"skipped"`
	Errors  uint64 `json:"errors"`
}

// Stats returns current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Skipped: r.skipped.Load(),
		Errors:  r.errors.Load(),
	}
}
