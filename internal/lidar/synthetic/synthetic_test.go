package synthetic

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
	"github.com/banshee-data/rangescan/internal/timeutil"
)

func TestGenerator_DecodesAsFullRotation(t *testing.T) {
	g := New(Config{RPM: 360, PacketsPerRev: 4, Profile: Constant(750), NoiseBytes: 7, Packets: 5, Seed: 1})
	d := parse.NewDecoder(parse.DefaultMagic, 0)

	var starts []float64
	for {
		p, err := d.Next(g)
		if err != nil {
			if !errors.Is(err, parse.ErrTransport) || !errors.Is(err, io.EOF) {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		starts = append(starts, p.StartAngleDeg())
		if p.RPM() != 360 {
			t.Errorf("RPM() = %v, want 360", p.RPM())
		}
		for i, s := range p.Samples {
			if s.DistanceRaw != 750 {
				t.Errorf("sample %d distance = %d, want 750", i, s.DistanceRaw)
			}
		}
	}

	want := []float64{0, 90, 180, 270, 0}
	if len(starts) != len(want) {
		t.Fatalf("decoded %d packets, want %d", len(starts), len(want))
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Errorf("packet %d start = %v, want %v", i, starts[i], want[i])
		}
	}
	if d.SkippedBytes() != 5*7 {
		t.Errorf("SkippedBytes() = %d, want %d", d.SkippedBytes(), 5*7)
	}
	if g.Sent() != 5 {
		t.Errorf("Sent() = %d, want 5", g.Sent())
	}
}

func TestGenerator_LastArcWrapsToZero(t *testing.T) {
	g := New(Config{PacketsPerRev: 3})
	g.NextPacket()
	g.NextPacket()
	last := g.NextPacket()
	if last.StartAngleDeg() != 240 || last.EndAngleDeg() != 0 {
		t.Errorf("last arc = %v..%v, want 240..0", last.StartAngleDeg(), last.EndAngleDeg())
	}
}

func TestGenerator_RealTimePacing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(Config{RPM: 600, PacketsPerRev: 10, Packets: 3, RealTime: true, Clock: clock})

	if got := g.PacketInterval(); got != 10*time.Millisecond {
		t.Fatalf("PacketInterval() = %v, want 10ms", got)
	}
	if _, err := io.ReadAll(g); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two 10ms sleeps", sleeps)
	}
	for _, s := range sleeps {
		if s != 10*time.Millisecond {
			t.Errorf("sleep = %v, want 10ms", s)
		}
	}
}

func TestRoomProfile(t *testing.T) {
	room := Room(4, 2)
	tests := []struct {
		deg  float64
		want uint16
	}{
		{0, 2000},
		{90, 1000},
		{180, 2000},
		{270, 1000},
	}
	for _, tt := range tests {
		if got := room(tt.deg); got < tt.want-1 || got > tt.want+1 {
			t.Errorf("Room(4,2)(%v) = %d, want %d", tt.deg, got, tt.want)
		}
	}
	// The corner direction hits both walls at the same distance.
	corner := math.Atan2(1, 2) * 180 / math.Pi
	if got := room(corner); math.Abs(float64(got)-math.Hypot(2000, 1000)) > 2 {
		t.Errorf("corner distance = %d", got)
	}
}

func TestPacketAndStream(t *testing.T) {
	p := Packet(350, 5, 300, 1, 2, 3)
	if p.StartAngleDeg() != 350 || p.EndAngleDeg() != 5 || p.RPM() != 300 {
		t.Errorf("packet = %+v", p)
	}
	if p.Samples[2].DistanceRaw != 3 || p.Samples[3].DistanceRaw != 0 {
		t.Errorf("samples = %+v", p.Samples)
	}
	if got := len(Stream(p, p)); got != 2*(len(parse.DefaultMagic)+parse.BODY_SIZE) {
		t.Errorf("Stream length = %d", got)
	}
}
