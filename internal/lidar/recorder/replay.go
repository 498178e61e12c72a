package recorder

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/rangescan/internal/monitoring"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

// ReplayConfig configures pcap replay.
type ReplayConfig struct {
	// SpeedMultiplier scales the recorded inter-frame gaps (1.0 = real-time,
	// 2.0 = 2x speed). Zero or less replays as fast as the reader consumes.
	SpeedMultiplier float64

	Clock timeutil.Clock // defaults to the real clock
}

// ReplaySource is an io.Reader over the frames of a pcap file. It returns
// io.EOF after the last frame, which the capture driver treats like a
// closed port.
type ReplaySource struct {
	cfg    ReplayConfig
	r      *pcapgo.Reader
	closer io.Closer
	path   string

	mu      sync.Mutex
	pending []byte
	lastTS  time.Time
	frames  uint64
	closed  bool
}

// OpenReplay opens a pcap file written by PcapWriter.
func OpenReplay(path string, cfg ReplayConfig) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	rs, err := NewReplaySource(f, cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rs.closer = f
	rs.path = path
	monitoring.Logf("[recorder] replaying %s (speed: %.1fx)", path, cfg.SpeedMultiplier)
	return rs, nil
}

// NewReplaySource reads pcap data from r.
func NewReplaySource(r io.Reader, cfg ReplayConfig) (*ReplaySource, error) {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if lt := pr.LinkType(); lt != LinkTypeUser0 {
		return nil, fmt.Errorf("unsupported pcap link type %d (want %d)", lt, LinkTypeUser0)
	}
	return &ReplaySource{cfg: cfg, r: pr}, nil
}

// Read implements io.Reader. Bytes of one frame may be split across calls;
// frames are never merged into one call.
func (s *ReplaySource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	if len(s.pending) == 0 {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				if s.path != "" {
					monitoring.Logf("[recorder] replay complete: %d frames from %s", s.frames, s.path)
				}
				return 0, io.EOF
			}
			return 0, fmt.Errorf("failed to read pcap record: %w", err)
		}
		s.pace(ci.Timestamp)
		s.pending = data
		s.frames++
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *ReplaySource) pace(ts time.Time) {
	defer func() { s.lastTS = ts }()
	if s.cfg.SpeedMultiplier <= 0 || s.lastTS.IsZero() {
		return
	}
	delay := time.Duration(float64(ts.Sub(s.lastTS)) / s.cfg.SpeedMultiplier)
	if delay > 0 {
		s.cfg.Clock.Sleep(delay)
	}
}

// Frames returns the number of frames read so far.
func (s *ReplaySource) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close releases the file. Later reads fail.
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
