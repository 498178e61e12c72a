// Package recorder records raw sensor frames to pcap files and replays them
// as a byte stream the capture driver can read.
//
// Each record holds the wire bytes of one packet, magic included, stamped
// with the time the driver decoded it. Files use the USER0 link type so
// Wireshark shows the payload without guessing a protocol.
package recorder

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/rangescan/internal/monitoring"
)

// LinkTypeUser0 is the pcap link type reserved for private protocols.
const LinkTypeUser0 = layers.LinkType(147)

// snapLen bounds a single record; packets are far smaller.
const snapLen = 65536

// PcapWriter writes frames to a pcap stream. It implements
// capture.FrameObserver and is safe for concurrent use.
type PcapWriter struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	path   string

	frames uint64
	bytes  uint64
	closed bool
}

// CreatePcap creates (truncating) the file at path and writes the pcap header.
func CreatePcap(path string) (*PcapWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file: %w", err)
	}
	pw, err := NewPcapWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	pw.closer = f
	pw.path = path
	monitoring.Logf("[recorder] recording frames to %s", path)
	return pw, nil
}

// NewPcapWriter writes the pcap header to w and returns a writer for frames.
func NewPcapWriter(w io.Writer) (*PcapWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, LinkTypeUser0); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PcapWriter{w: pw}, nil
}

// ObserveFrame appends one record.
func (p *PcapWriter) ObserveFrame(raw []byte, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(raw),
		Length:        len(raw),
	}
	if err := p.w.WritePacket(ci, raw); err != nil {
		return fmt.Errorf("failed to write pcap record: %w", err)
	}
	p.frames++
	p.bytes += uint64(len(raw))
	return nil
}

// Frames returns the number of records written.
func (p *PcapWriter) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Close closes the underlying file when the writer owns one.
func (p *PcapWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.path != "" {
		monitoring.Logf("[recorder] wrote %d frames (%d bytes) to %s", p.frames, p.bytes, p.path)
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
