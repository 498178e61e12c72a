package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
	"github.com/banshee-data/rangescan/internal/lidar/l2frames"
	"github.com/banshee-data/rangescan/internal/monitoring"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

var (
	// ErrAlreadyStarted is returned by Start on a running driver.
	ErrAlreadyStarted = errors.New("capture driver already started")
	// ErrStopped is returned by Start on a stopped driver.
	ErrStopped = errors.New("capture driver stopped")
)

// State is the driver lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FrameObserver receives the wire bytes of every decoded packet. raw is
// reused after ObserveFrame returns. It is called from the read loop
// outside the driver lock; a slow observer slows capture.
type FrameObserver interface {
	ObserveFrame(raw []byte, at time.Time) error
}

// Config holds driver construction parameters.
type Config struct {
	DataSize      int           // sample slots in the ring; default 480
	Invert        bool          // negate angles for an inverted mounting
	Magic         parse.Magic   // frame header; default parse.DefaultMagic
	MaxSyncBytes  int           // 0 = search for the magic indefinitely
	StatsInterval time.Duration // 0 disables periodic stats logging
	ReadBuffer    int           // bufio size in front of the source; default 4096

	Clock    timeutil.Clock // default timeutil.RealClock
	Observer FrameObserver  // optional
}

const (
	defaultDataSize   = 480
	defaultReadBuffer = 4096
)

// Snapshot is a consistent copy of the driver's scan and state.
type Snapshot struct {
	Angles      []float64 // radians, slot order
	Distances   []float64 // metres, slot order
	RPM         float64
	Ready       bool
	Cursor      int
	Revolutions uint64
	Time        time.Time // time of the last packet written
}

// Driver owns the capture read loop and its scan store.
type Driver struct {
	cfg     Config
	clock   timeutil.Clock
	src     io.Reader
	decoder *parse.Decoder

	running  atomic.Bool
	quit     chan struct{}
	done     chan struct{}
	statsWG  sync.WaitGroup
	throttle *monitoring.Throttle

	mu       sync.Mutex // guards everything below
	state    State
	err      error
	ring     *l2frames.Ring
	detector l2frames.RevolutionDetector
	rpm      float64
	stats    Stats
	rates    rateCounter
}

// New returns a driver reading from src. src should return (0, nil) from
// Read when no data arrived within its read timeout; otherwise Stop waits
// for the next packet or for the source to fail.
func New(src io.Reader, cfg Config) (*Driver, error) {
	if src == nil {
		return nil, errors.New("capture source is nil")
	}
	if cfg.DataSize == 0 {
		cfg.DataSize = defaultDataSize
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MaxSyncBytes < 0 {
		return nil, fmt.Errorf("max sync bytes must be non-negative, got %d", cfg.MaxSyncBytes)
	}
	ring, err := l2frames.NewRing(cfg.DataSize)
	if err != nil {
		return nil, err
	}
	if cfg.DataSize%parse.SAMPLES_PER_PACKET != 0 {
		monitoring.Logf("[capture] data size %d is not a multiple of %d; packets will straddle the ring boundary",
			cfg.DataSize, parse.SAMPLES_PER_PACKET)
	}

	return &Driver{
		cfg:      cfg,
		clock:    cfg.Clock,
		src:      bufio.NewReaderSize(src, cfg.ReadBuffer),
		decoder:  parse.NewDecoder(cfg.Magic, cfg.MaxSyncBytes),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		throttle: monitoring.NewThrottle(5*time.Second, cfg.Clock),
		ring:     ring,
	}, nil
}

// Start launches the read loop.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	d.state = StateRunning
	now := d.clock.Now()
	d.stats.StartedAt = now
	d.rates.reset(now)
	d.running.Store(true)

	if d.cfg.StatsInterval > 0 {
		d.statsWG.Add(1)
		go d.statsLoop()
	}
	go d.loop()
	monitoring.Logf("[capture] started: %d slots, magic %s, invert=%v", d.ring.Cap(), d.decoder.Magic(), d.cfg.Invert)
	return nil
}

// Stop ends the read loop and waits for it to exit. No sample is written
// after Stop returns. It may be called more than once and before Start.
func (d *Driver) Stop() {
	d.mu.Lock()
	switch d.state {
	case StateCreated:
		d.state = StateStopped
		close(d.quit)
		close(d.done)
		d.mu.Unlock()
		return
	case StateRunning:
		d.running.Store(false)
	}
	d.mu.Unlock()
	<-d.done
}

// Done is closed once the driver has stopped, whether by Stop or because
// the source failed.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Err returns the transport fault that ended the read loop, or nil.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// State returns the lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsReady reports whether a full revolution has been seen. Once true it
// stays true.
func (d *Driver) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detector.Seen()
}

// Scan returns copies of the ring's angles and distances in slot order.
// Slot order is circular: index 0 is not the oldest sample once the ring
// has wrapped.
func (d *Driver) Scan() (angles, distances []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ring.Snapshot()
}

// RPM returns the rotation speed reported by the last packet.
func (d *Driver) RPM() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rpm
}

// Cap returns the number of sample slots.
func (d *Driver) Cap() int {
	return d.ring.Cap()
}

// Snapshot returns the scan together with the state it belongs to.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	angles, distances := d.ring.Snapshot()
	return Snapshot{
		Angles:      angles,
		Distances:   distances,
		RPM:         d.rpm,
		Ready:       d.detector.Seen(),
		Cursor:      d.ring.Cursor(),
		Revolutions: d.detector.Boundaries(),
		Time:        d.stats.LastPacketAt,
	}
}

func (d *Driver) loop() {
	defer func() {
		close(d.quit)
		d.statsWG.Wait()
		d.mu.Lock()
		d.state = StateStopped
		d.mu.Unlock()
		d.logStats()
		close(d.done)
	}()

	for d.running.Load() {
		p, err := d.decoder.Next(d.src)
		if err != nil {
			if !d.handleReadError(err) {
				return
			}
			continue
		}

		now := d.clock.Now()
		if d.cfg.Observer != nil {
			if err := d.cfg.Observer.ObserveFrame(d.decoder.LastRaw(), now); err != nil {
				d.mu.Lock()
				d.stats.ObserverErrors++
				d.mu.Unlock()
				d.throttle.Logf("observer", "[capture] frame observer: %v", err)
			}
		}

		samples := l2frames.Expand(p, d.cfg.Invert)

		d.mu.Lock()
		d.ring.WriteBatch(samples[:])
		wrapped := d.detector.Observe(p.StartAngleDeg())
		d.rpm = p.RPM()
		d.stats.Packets++
		d.stats.Bytes += uint64(len(d.decoder.LastRaw()))
		d.stats.SkippedBytes = d.decoder.SkippedBytes()
		d.stats.Revolutions = d.detector.Boundaries()
		d.stats.LastPacketAt = now
		d.rates.packets++
		d.rates.bytes += uint64(len(d.decoder.LastRaw()))
		first := wrapped && d.detector.Boundaries() == 1
		d.mu.Unlock()

		if first {
			monitoring.Logf("[capture] first revolution complete, scan ready (rpm %.1f)", p.RPM())
		}
	}
}

// handleReadError records a failed decode. It reports whether the loop
// should continue.
func (d *Driver) handleReadError(err error) bool {
	if !parse.IsRecoverable(err) {
		d.mu.Lock()
		d.err = err
		d.stats.SkippedBytes = d.decoder.SkippedBytes()
		d.mu.Unlock()
		monitoring.Logf("[capture] transport fault, stopping: %v", err)
		return false
	}

	d.mu.Lock()
	d.stats.SkippedBytes = d.decoder.SkippedBytes()
	if errors.Is(err, parse.ErrFraming) {
		d.stats.FramingFaults++
		d.rates.resyncs++
	} else {
		d.stats.ShortReads++
		if dropped := d.decoder.Dropped(); dropped != d.stats.DroppedPackets {
			d.stats.DroppedPackets = dropped
			d.rates.resyncs++
		}
	}
	d.mu.Unlock()

	if errors.Is(err, parse.ErrFraming) {
		d.throttle.Logf("framing", "[capture] resync: %v", err)
	}
	return true
}

func (d *Driver) statsLoop() {
	defer d.statsWG.Done()
	ticker := d.clock.NewTicker(d.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C():
			d.logStats()
		}
	}
}
