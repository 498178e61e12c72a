package capture

import (
	"fmt"
	"time"

	"github.com/banshee-data/rangescan/internal/monitoring"
)

// Stats holds cumulative capture counters.
type Stats struct {
	Packets        uint64    `json:"packets"`
	Bytes          uint64    `json:"bytes"`           // wire bytes of decoded packets, magic included
	SkippedBytes   uint64    `json:"skipped_bytes"`   // discarded while searching for the magic
	ShortReads     uint64    `json:"short_reads"`     // reads that returned no data, idle timeouts included
	DroppedPackets uint64    `json:"dropped_packets"` // bodies cut short after a magic
	FramingFaults  uint64    `json:"framing_faults"`  // magic searches abandoned at MaxSyncBytes
	Revolutions    uint64    `json:"revolutions"`
	ObserverErrors uint64    `json:"observer_errors"`
	StartedAt      time.Time `json:"started_at"`
	LastPacketAt   time.Time `json:"last_packet_at"`
}

// RateSnapshot is the capture throughput over the last stats interval.
type RateSnapshot struct {
	PacketsPerSec float64   `json:"packets_per_sec"`
	KBPerSec      float64   `json:"kb_per_sec"`
	Resyncs       uint64    `json:"resyncs"`
	RPM           float64   `json:"rpm"`
	Timestamp     time.Time `json:"timestamp"`
}

// rateCounter accumulates per-interval counts. Guarded by Driver.mu.
type rateCounter struct {
	packets   uint64
	bytes     uint64
	resyncs   uint64
	lastReset time.Time
	latest    *RateSnapshot
}

func (r *rateCounter) reset(now time.Time) {
	r.packets = 0
	r.bytes = 0
	r.resyncs = 0
	r.lastReset = now
}

// Stats returns a copy of the cumulative counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// LatestRates returns the throughput computed at the last stats log, or nil
// before the first one.
func (d *Driver) LatestRates() *RateSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rates.latest == nil {
		return nil
	}
	snap := *d.rates.latest
	return &snap
}

// logStats computes rates since the previous call, stores them for
// LatestRates and writes one log line.
func (d *Driver) logStats() {
	now := d.clock.Now()

	d.mu.Lock()
	elapsed := now.Sub(d.rates.lastReset)
	packets, bytes, resyncs := d.rates.packets, d.rates.bytes, d.rates.resyncs
	rpm := d.rpm
	total := d.stats.Packets
	revolutions := d.detector.Boundaries()
	ready := d.detector.Seen()
	d.rates.reset(now)
	if elapsed <= 0 {
		d.mu.Unlock()
		return
	}
	snap := &RateSnapshot{
		PacketsPerSec: float64(packets) / elapsed.Seconds(),
		KBPerSec:      float64(bytes) / elapsed.Seconds() / 1024,
		Resyncs:       resyncs,
		RPM:           rpm,
		Timestamp:     now,
	}
	d.rates.latest = snap
	d.mu.Unlock()

	msg := fmt.Sprintf("[capture] stats (/sec): %.1f packets, %.2f KB; rpm %.1f; %s packets, %d revolutions, ready=%v",
		snap.PacketsPerSec, snap.KBPerSec, rpm, FormatWithCommas(int64(total)), revolutions, ready)
	if resyncs > 0 {
		msg += fmt.Sprintf(", %d resyncs", resyncs)
	}
	monitoring.Logf("%s", msg)
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
