package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

/*
Wire format

Every packet covers one angular arc and carries eight range samples:

	magic           4 bytes  55 AA 03 08 (configurable)
	rotation speed  u16 LE   rpm * 64
	start angle     u16 LE   deg * 64 + 0xA000
	8 x sample      3 bytes  u16 LE distance (mm), u8 intensity
	end angle       u16 LE   deg * 64 + 0xA000
	reserved        u16 LE   unused

There is no checksum. A corrupted but length-correct packet decodes to wrong
values; that is a property of the protocol.
*/
const (
	SAMPLES_PER_PACKET = 8
	HEADER_FIELDS_SIZE = 4 // rotation speed + start angle
	SAMPLE_SIZE        = 3 // distance + intensity
	TAIL_FIELDS_SIZE   = 4 // end angle + reserved
	SAMPLES_SIZE       = SAMPLES_PER_PACKET * SAMPLE_SIZE
	BODY_SIZE          = HEADER_FIELDS_SIZE + SAMPLES_SIZE + TAIL_FIELDS_SIZE // 32 bytes after the magic

	ANGLE_OFFSET = 0xA000 // raw angle value representing 0°
	ANGLE_SCALE  = 64.0   // raw units per degree
	SPEED_SCALE  = 64.0   // raw units per rpm
)

// RawSample is one range reading as it appears on the wire.
type RawSample struct {
	DistanceRaw  uint16 // millimetres
	IntensityRaw uint8
}

// RawPacket is a decoded packet body in wire units.
type RawPacket struct {
	RotationSpeedRaw uint16
	StartAngleRaw    uint16
	Samples          [SAMPLES_PER_PACKET]RawSample
	EndAngleRaw      uint16
	Reserved         uint16
}

// RPM returns the rotation speed of the sensor head.
func (p RawPacket) RPM() float64 {
	return float64(p.RotationSpeedRaw) / SPEED_SCALE
}

// StartAngleDeg returns the angle of the first sample in degrees.
func (p RawPacket) StartAngleDeg() float64 {
	return angleDeg(p.StartAngleRaw)
}

// EndAngleDeg returns the angle reported at the end of the packet in degrees.
// It can be smaller than StartAngleDeg when the arc crosses 0°.
func (p RawPacket) EndAngleDeg() float64 {
	return angleDeg(p.EndAngleRaw)
}

func angleDeg(raw uint16) float64 {
	return (float64(raw) - ANGLE_OFFSET) / ANGLE_SCALE
}

// AngleRaw converts degrees back to the wire representation. Values outside
// the representable range are clamped.
func AngleRaw(deg float64) uint16 {
	v := deg*ANGLE_SCALE + ANGLE_OFFSET
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v + 0.5)
}

// SpeedRaw converts rpm to the wire representation.
func SpeedRaw(rpm float64) uint16 {
	v := rpm * SPEED_SCALE
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v + 0.5)
}

// DecodeBody interprets the BODY_SIZE bytes that follow the magic.
func DecodeBody(body []byte) (RawPacket, error) {
	var p RawPacket
	if len(body) < BODY_SIZE {
		return p, fmt.Errorf("%w: packet body needs %d bytes, have %d", ErrShortRead, BODY_SIZE, len(body))
	}

	p.RotationSpeedRaw = binary.LittleEndian.Uint16(body[0:2])
	p.StartAngleRaw = binary.LittleEndian.Uint16(body[2:4])

	off := HEADER_FIELDS_SIZE
	for i := 0; i < SAMPLES_PER_PACKET; i++ {
		p.Samples[i] = RawSample{
			DistanceRaw:  binary.LittleEndian.Uint16(body[off : off+2]),
			IntensityRaw: body[off+2],
		}
		off += SAMPLE_SIZE
	}

	p.EndAngleRaw = binary.LittleEndian.Uint16(body[off : off+2])
	p.Reserved = binary.LittleEndian.Uint16(body[off+2 : off+4])
	return p, nil
}

// Encode returns the wire bytes for p, starting with magic.
func Encode(p RawPacket, magic Magic) []byte {
	if len(magic) == 0 {
		magic = DefaultMagic
	}
	buf := make([]byte, len(magic)+BODY_SIZE)
	n := copy(buf, magic)
	body := buf[n:]

	binary.LittleEndian.PutUint16(body[0:2], p.RotationSpeedRaw)
	binary.LittleEndian.PutUint16(body[2:4], p.StartAngleRaw)
	off := HEADER_FIELDS_SIZE
	for _, s := range p.Samples {
		binary.LittleEndian.PutUint16(body[off:off+2], s.DistanceRaw)
		body[off+2] = s.IntensityRaw
		off += SAMPLE_SIZE
	}
	binary.LittleEndian.PutUint16(body[off:off+2], p.EndAngleRaw)
	binary.LittleEndian.PutUint16(body[off+2:off+4], p.Reserved)
	return buf
}

// Decoder reads packets from a byte stream: Frame Sync followed by a fixed
// body read. It owns a Syncer and a scratch buffer and is not safe for
// concurrent use.
type Decoder struct {
	syncer *Syncer
	raw    []byte // magic followed by the body of the last packet

	packets      uint64
	dropped      uint64
	skippedBytes uint64
}

// NewDecoder returns a Decoder for the given magic. maxSyncBytes bounds the
// search for the magic (see NewSyncer).
func NewDecoder(magic Magic, maxSyncBytes int) *Decoder {
	s := NewSyncer(magic, maxSyncBytes)
	raw := make([]byte, len(s.magic)+BODY_SIZE)
	copy(raw, s.magic)
	return &Decoder{syncer: s, raw: raw}
}

// Next synchronises on the next magic and decodes the packet that follows.
//
// A short read discards the packet and returns an error wrapping
// ErrShortRead; the following call resynchronises. Errors wrapping
// ErrTransport mean the stream is unusable.
func (d *Decoder) Next(r io.Reader) (RawPacket, error) {
	consumed, err := d.syncer.Sync(r)
	if err != nil {
		d.skippedBytes += uint64(consumed)
		return RawPacket{}, err
	}
	// consumed can be shorter than the magic when a match resumed after a
	// timeout.
	if skipped := consumed - len(d.syncer.magic); skipped > 0 {
		d.skippedBytes += uint64(skipped)
	}

	body := d.raw[len(d.syncer.magic):]
	if err := readFull(r, body); err != nil {
		if errors.Is(err, ErrShortRead) {
			d.dropped++
		}
		return RawPacket{}, fmt.Errorf("packet body: %w", err)
	}

	p, err := DecodeBody(body)
	if err != nil {
		return RawPacket{}, err
	}
	d.packets++
	return p, nil
}

// LastRaw returns the wire bytes of the most recently decoded packet. The
// slice is reused by the next call to Next.
func (d *Decoder) LastRaw() []byte {
	return d.raw
}

// Magic returns the frame header the decoder synchronises on.
func (d *Decoder) Magic() Magic { return d.syncer.Magic() }

// Dropped returns the number of packets discarded after their magic because
// the body was cut short.
func (d *Decoder) Dropped() uint64 { return d.dropped }

// Packets returns the number of packets decoded so far.
func (d *Decoder) Packets() uint64 { return d.packets }

// SkippedBytes returns the number of bytes discarded while searching for the
// magic.
func (d *Decoder) SkippedBytes() uint64 { return d.skippedBytes }

// readFull fills buf from r. Unlike io.ReadFull it treats a read that returns
// no data and no error (a serial read timeout) as a short read instead of
// retrying forever.
func readFull(r io.Reader, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if n == len(buf) {
				return nil
			}
			return fmt.Errorf("%w: read %d of %d bytes: %w", ErrTransport, n, len(buf), err)
		}
		if m == 0 {
			return fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, n, len(buf))
		}
	}
	return nil
}
