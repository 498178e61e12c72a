package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rangescan/internal/timeutil"
)

// Throttle limits how often a class of log line is written. A noisy serial
// line can produce a resync per packet; the capture driver logs those
// through a Throttle so one line per interval reaches the log together with
// a count of what was suppressed.
type Throttle struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	interval   time.Duration
	last       map[string]time.Time
	suppressed map[string]int
}

// NewThrottle returns a Throttle that lets one line per key through every
// interval. A nil clock uses the real clock.
func NewThrottle(interval time.Duration, clock timeutil.Clock) *Throttle {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Throttle{
		clock:      clock,
		interval:   interval,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Logf writes the line through Logf unless a line with the same key was
// written less than interval ago. It reports whether the line was written.
func (t *Throttle) Logf(key, format string, v ...interface{}) bool {
	t.mu.Lock()
	now := t.clock.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		t.suppressed[key]++
		t.mu.Unlock()
		return false
	}
	n := t.suppressed[key]
	t.last[key] = now
	t.suppressed[key] = 0
	t.mu.Unlock()

	msg := fmt.Sprintf(format, v...)
	if n > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, n)
	}
	Logf("%s", msg)
	return true
}
