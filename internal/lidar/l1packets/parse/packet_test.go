package parse

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/rangescan/internal/testutil"
)

func samplePacket() RawPacket {
	p := RawPacket{
		RotationSpeedRaw: 300 * 64,
		StartAngleRaw:    ANGLE_OFFSET,
		EndAngleRaw:      ANGLE_OFFSET + 64*10,
	}
	for i := range p.Samples {
		p.Samples[i] = RawSample{DistanceRaw: uint16(100 * (i + 1)), IntensityRaw: uint8(200 + i)}
	}
	return p
}

func TestEncode_Layout(t *testing.T) {
	wire := Encode(samplePacket(), DefaultMagic)

	if len(wire) != len(DefaultMagic)+BODY_SIZE {
		t.Fatalf("encoded length = %d, want %d", len(wire), len(DefaultMagic)+BODY_SIZE)
	}
	if !bytes.Equal(wire[:4], DefaultMagic) {
		t.Errorf("magic = % X, want % X", wire[:4], DefaultMagic)
	}
	// rotation speed 19200 = 0x4B00 little-endian
	if wire[4] != 0x00 || wire[5] != 0x4B {
		t.Errorf("speed bytes = % X, want 00 4B", wire[4:6])
	}
	// first sample distance 100 = 0x0064, intensity 200
	if wire[8] != 0x64 || wire[9] != 0x00 || wire[10] != 200 {
		t.Errorf("first sample bytes = % X, want 64 00 C8", wire[8:11])
	}
}

func TestDecodeBody_UnitConversion(t *testing.T) {
	wire := Encode(samplePacket(), DefaultMagic)
	p, err := DecodeBody(wire[len(DefaultMagic):])
	if err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}

	if p != samplePacket() {
		t.Errorf("decoded packet = %+v, want %+v", p, samplePacket())
	}
	if got := p.RPM(); got != 300 {
		t.Errorf("RPM() = %v, want 300", got)
	}
	if got := p.StartAngleDeg(); got != 0 {
		t.Errorf("StartAngleDeg() = %v, want 0", got)
	}
	if got := p.EndAngleDeg(); got != 10 {
		t.Errorf("EndAngleDeg() = %v, want 10", got)
	}
}

func TestDecodeBody_TooShort(t *testing.T) {
	_, err := DecodeBody(make([]byte, BODY_SIZE-1))
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestAngleConversions(t *testing.T) {
	tests := []struct {
		deg  float64
		want uint16
	}{
		{0, 0xA000},
		{10, 0xA000 + 640},
		{359.984375, 0xA000 + 23039},
		{-1, 0xA000 - 64},
		{-1000, 0},
		{1000, 0xFFFF},
	}
	for _, tt := range tests {
		if got := AngleRaw(tt.deg); got != tt.want {
			t.Errorf("AngleRaw(%v) = 0x%04X, want 0x%04X", tt.deg, got, tt.want)
		}
	}

	// Raw values below the offset are negative angles.
	if got := angleDeg(0xA000 - 128); got != -2 {
		t.Errorf("angleDeg(0xA000-128) = %v, want -2", got)
	}
	if got := SpeedRaw(300); got != 19200 {
		t.Errorf("SpeedRaw(300) = %d, want 19200", got)
	}
	if got := SpeedRaw(math.Inf(1)); got != 0xFFFF {
		t.Errorf("SpeedRaw(+Inf) = %d, want 0xFFFF", got)
	}
}

func TestDecoder_NextAcrossNoise(t *testing.T) {
	first := samplePacket()
	second := samplePacket()
	second.StartAngleRaw = AngleRaw(10)
	second.EndAngleRaw = AngleRaw(20)

	stream := testutil.Concat(
		[]byte{0x00, 0x55, 0x13},
		Encode(first, DefaultMagic),
		[]byte{0xAA, 0x03},
		Encode(second, DefaultMagic),
	)
	d := NewDecoder(DefaultMagic, 0)
	r := bytes.NewReader(stream)

	got, err := d.Next(r)
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if got != first {
		t.Errorf("first packet = %+v, want %+v", got, first)
	}
	if !bytes.Equal(d.LastRaw(), Encode(first, DefaultMagic)) {
		t.Error("LastRaw does not match the wire bytes of the first packet")
	}

	got, err = d.Next(r)
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if got.StartAngleDeg() != 10 || got.EndAngleDeg() != 20 {
		t.Errorf("second packet angles = %v..%v, want 10..20", got.StartAngleDeg(), got.EndAngleDeg())
	}

	if d.Packets() != 2 {
		t.Errorf("Packets() = %d, want 2", d.Packets())
	}
	if d.SkippedBytes() != 5 {
		t.Errorf("SkippedBytes() = %d, want 5", d.SkippedBytes())
	}

	if _, err := d.Next(r); !errors.Is(err, ErrTransport) {
		t.Errorf("Next at end of stream err = %v, want ErrTransport", err)
	}
}

// TestDecoder_ShortReadResyncs drops a packet cut short by a read timeout and
// decodes the next complete one.
func TestDecoder_ShortReadResyncs(t *testing.T) {
	whole := Encode(samplePacket(), DefaultMagic)
	r := testutil.NewScriptedReader(whole[:20], testutil.Timeout, whole)
	d := NewDecoder(DefaultMagic, 0)

	if _, err := d.Next(r); !errors.Is(err, ErrShortRead) {
		t.Fatalf("first Next err = %v, want ErrShortRead", err)
	}
	got, err := d.Next(r)
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if got != samplePacket() {
		t.Errorf("packet = %+v, want %+v", got, samplePacket())
	}
	if d.Packets() != 1 {
		t.Errorf("Packets() = %d, want 1", d.Packets())
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestDecoder_TransportFaultMidBody(t *testing.T) {
	whole := Encode(samplePacket(), DefaultMagic)
	boom := errors.New("device disconnected")
	r := testutil.NewScriptedReader(whole[:12])
	r.Err = boom

	_, err := NewDecoder(DefaultMagic, 0).Next(r)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrTransport wrapping %v", err, boom)
	}
}

func TestDecoder_CustomMagic(t *testing.T) {
	magic := Magic{0xA5, 0x5A}
	stream := testutil.Concat(Encode(samplePacket(), DefaultMagic), Encode(samplePacket(), magic))
	d := NewDecoder(magic, 0)

	got, err := d.Next(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got != samplePacket() {
		t.Errorf("packet = %+v, want %+v", got, samplePacket())
	}
	if d.Magic().String() != "A55A" {
		t.Errorf("Magic() = %s, want A55A", d.Magic())
	}
	if d.SkippedBytes() != uint64(len(DefaultMagic)+BODY_SIZE) {
		t.Errorf("SkippedBytes() = %d, want %d", d.SkippedBytes(), len(DefaultMagic)+BODY_SIZE)
	}
}
