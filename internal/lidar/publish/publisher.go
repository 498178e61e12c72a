package publish

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rangescan/internal/monitoring"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

// DefaultInterval is the publish cadence (20 Hz).
const DefaultInterval = 50 * time.Millisecond

// Source is what the publisher reads scans from. capture.Driver implements
// it.
type Source interface {
	IsReady() bool
	Scan() (angles, distances []float64)
	RPM() float64
}

// Sink receives every published scan. Sinks are called in order from the
// publisher goroutine and must not retain or modify scan.Ranges beyond the
// call unless they copy it; slow sinks delay the next tick.
type Sink interface {
	PublishScan(scan *LaserScan) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(scan *LaserScan) error

// PublishScan calls f.
func (f SinkFunc) PublishScan(scan *LaserScan) error { return f(scan) }

// Config holds publisher configuration.
type Config struct {
	Interval time.Duration // default DefaultInterval
	Options  Options
	Clock    timeutil.Clock // default timeutil.RealClock
}

// Publisher polls a Source on a fixed cadence and forwards ready scans to
// its sinks.
type Publisher struct {
	cfg      Config
	src      Source
	throttle *monitoring.Throttle

	sinksMu sync.RWMutex
	sinks   []Sink

	published  atomic.Uint64
	notReady   atomic.Uint64
	sinkErrors atomic.Uint64
	latest     atomic.Pointer[LaserScan]

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a Publisher reading from src.
func NewPublisher(src Source, cfg Config, sinks ...Sink) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	cfg.Options = cfg.Options.withDefaults()
	return &Publisher{
		cfg:      cfg,
		src:      src,
		sinks:    sinks,
		throttle: monitoring.NewThrottle(5*time.Second, cfg.Clock),
		stopCh:   make(chan struct{}),
	}
}

// AddSink registers another sink. It may be called while running.
func (p *Publisher) AddSink(s Sink) {
	p.sinksMu.Lock()
	defer p.sinksMu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Start launches the publish loop.
func (p *Publisher) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.wg.Add(1)
	go p.loop()
	monitoring.Logf("[publish] publishing every %v as frame %q", p.cfg.Interval, p.cfg.Options.FrameID)
	return nil
}

// Stop ends the publish loop and waits for it. It is safe to call more than
// once.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
	monitoring.Logf("[publish] stopped after %d scans", p.published.Load())
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C():
			p.PublishOnce()
		}
	}
}

// PublishOnce performs one tick: when the source is ready it builds a scan
// and hands it to every sink. It returns the scan, or nil when nothing was
// published.
func (p *Publisher) PublishOnce() *LaserScan {
	if !p.src.IsReady() {
		p.notReady.Add(1)
		return nil
	}

	angles, distances := p.src.Scan()
	scan, err := BuildLaserScan(angles, distances, p.src.RPM(), p.cfg.Clock.Now(), p.cfg.Options)
	if err != nil {
		p.throttle.Logf("build", "[publish] build scan: %v", err)
		return nil
	}
	scan.Seq = p.published.Add(1)
	p.latest.Store(scan)

	p.sinksMu.RLock()
	sinks := p.sinks
	p.sinksMu.RUnlock()
	for i, s := range sinks {
		if err := s.PublishScan(scan); err != nil {
			p.sinkErrors.Add(1)
			p.throttle.Logf(fmt.Sprintf("sink-%d", i), "[publish] sink %d: %v", i, err)
		}
	}
	return scan
}

// Latest returns the most recently published scan, or nil.
func (p *Publisher) Latest() *LaserScan {
	return p.latest.Load()
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.sinksMu.RLock()
	sinks := len(p.sinks)
	p.sinksMu.RUnlock()
	return PublisherStats{
		Published:  p.published.Load(),
		NotReady:   p.notReady.Load(),
		SinkErrors: p.sinkErrors.Load(),
		Sinks:      sinks,
		Running:    p.running.Load(),
		Interval:   p.cfg.Interval.String(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published  uint64 `json:"published"`
	NotReady   uint64 `json:"not_ready"` // ticks skipped before the first revolution
	SinkErrors uint64 `json:"sink_errors"`
	Sinks      int    `json:"sinks"`
	Running    bool   `json:"running"`
	Interval   string `json:"interval"`
}
