package parse

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Magic is the byte sequence that starts every packet on the wire.
type Magic []byte

// DefaultMagic is the header emitted by the sensor before each packet.
var DefaultMagic = Magic{0x55, 0xAA, 0x03, 0x08}

// ParseMagic decodes a hex string such as "55AA0308" (spaces and an optional
// 0x prefix are ignored).
func ParseMagic(s string) (Magic, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, fmt.Errorf("magic sequence is empty")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid magic sequence %q: %w", s, err)
	}
	return Magic(b), nil
}

// String returns the upper-case hex form, e.g. "55AA0308".
func (m Magic) String() string {
	return strings.ToUpper(hex.EncodeToString(m))
}

// Syncer locates the magic sequence in a byte stream.
//
// Matching is single pass: when a partial match breaks, the mismatching byte
// is re-evaluated against the longest prefix that is still a suffix of what
// has been seen, so a byte that starts the magic is never lost. Match
// progress is kept between calls, which lets a read timeout in the middle of
// the magic resume where it left off.
//
// A Syncer is not safe for concurrent use.
type Syncer struct {
	magic   Magic
	prefix  []int // prefix[i]: longest proper prefix of magic[:i+1] that is also its suffix
	maxScan int
	matched int
	one     [1]byte
}

// NewSyncer returns a Syncer for magic. maxScan bounds the number of bytes a
// single Sync call consumes before giving up with ErrFraming; zero means
// unbounded.
func NewSyncer(magic Magic, maxScan int) *Syncer {
	if len(magic) == 0 {
		magic = DefaultMagic
	}
	m := make(Magic, len(magic))
	copy(m, magic)

	prefix := make([]int, len(m))
	k := 0
	for i := 1; i < len(m); i++ {
		for k > 0 && m[i] != m[k] {
			k = prefix[k-1]
		}
		if m[i] == m[k] {
			k++
		}
		prefix[i] = k
	}

	return &Syncer{magic: m, prefix: prefix, maxScan: maxScan}
}

// Magic returns the sequence the Syncer looks for.
func (s *Syncer) Magic() Magic {
	return s.magic
}

// Reset discards any partial match.
func (s *Syncer) Reset() {
	s.matched = 0
}

// Sync reads one byte at a time from r until the most recently read bytes
// equal the magic. On success the stream is positioned immediately after the
// magic. consumed counts every byte read by this call, magic included.
func (s *Syncer) Sync(r io.Reader) (consumed int, err error) {
	for {
		if s.maxScan > 0 && consumed >= s.maxScan {
			return consumed, fmt.Errorf("%w: magic %s not found in %d bytes", ErrFraming, s.magic, consumed)
		}

		n, err := r.Read(s.one[:])
		if n == 0 {
			if err != nil {
				return consumed, fmt.Errorf("%w: while syncing: %w", ErrTransport, err)
			}
			return consumed, fmt.Errorf("%w: no data while syncing", ErrShortRead)
		}
		consumed++

		b := s.one[0]
		for s.matched > 0 && b != s.magic[s.matched] {
			s.matched = s.prefix[s.matched-1]
		}
		if b == s.magic[s.matched] {
			s.matched++
		}
		if s.matched == len(s.magic) {
			s.matched = 0
			return consumed, nil
		}
		// A byte delivered together with an error is consumed before the
		// error is reported.
		if err != nil {
			return consumed, fmt.Errorf("%w: while syncing: %w", ErrTransport, err)
		}
	}
}
