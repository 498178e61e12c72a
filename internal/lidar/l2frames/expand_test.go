package l2frames

import (
	"math"
	"testing"

	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
)

const epsilon = 1e-9

func packetSpanning(startDeg, endDeg float64) parse.RawPacket {
	p := parse.RawPacket{
		RotationSpeedRaw: parse.SpeedRaw(360),
		StartAngleRaw:    parse.AngleRaw(startDeg),
		EndAngleRaw:      parse.AngleRaw(endDeg),
	}
	for i := range p.Samples {
		p.Samples[i].DistanceRaw = uint16(250 + 10*i)
	}
	return p
}

func deg(d float64) float64 { return d * math.Pi / 180 }

func TestExpand_EvenSpacing(t *testing.T) {
	p := parse.RawPacket{StartAngleRaw: 0xA000, EndAngleRaw: 0xA000 + 64*10}
	samples := Expand(p, false)

	step := deg(10) / 8
	for i, s := range samples {
		want := step * float64(i)
		if math.Abs(s.AngleRad-want) > epsilon {
			t.Errorf("sample %d angle = %v, want %v", i, s.AngleRad, want)
		}
		if s.AngleRad < 0 || s.AngleRad > deg(10) {
			t.Errorf("sample %d angle %v outside [0, 10°]", i, s.AngleRad)
		}
		if i > 0 && s.AngleRad <= samples[i-1].AngleRad {
			t.Errorf("sample %d angle %v not above previous %v", i, s.AngleRad, samples[i-1].AngleRad)
		}
	}
}

func TestExpand_UnwrapsAcrossZero(t *testing.T) {
	samples := Expand(packetSpanning(350, 5), false)

	span := (samples[7].AngleRad - samples[0].AngleRad) * 8 / 7
	if math.Abs(span-deg(15)) > 1e-6 {
		t.Errorf("span = %v rad, want %v (15°)", span, deg(15))
	}
	if math.Abs(samples[0].AngleRad-deg(350)) > 1e-6 {
		t.Errorf("first angle = %v, want %v", samples[0].AngleRad, deg(350))
	}
	if samples[7].AngleRad <= samples[0].AngleRad {
		t.Error("unwrapped angles must increase")
	}
}

func TestExpand_Invert(t *testing.T) {
	plain := Expand(packetSpanning(20, 30), false)
	inverted := Expand(packetSpanning(20, 30), true)

	for i := range plain {
		if math.Abs(inverted[i].AngleRad+plain[i].AngleRad) > epsilon {
			t.Errorf("sample %d inverted angle = %v, want %v", i, inverted[i].AngleRad, -plain[i].AngleRad)
		}
		if inverted[i].DistanceM != plain[i].DistanceM {
			t.Errorf("sample %d distance changed by invert", i)
		}
	}
	if inverted[1].AngleRad >= inverted[0].AngleRad {
		t.Error("inverted angles should decrease")
	}
}

func TestExpand_Distances(t *testing.T) {
	samples := Expand(packetSpanning(0, 10), false)
	for i, s := range samples {
		want := float64(250+10*i) / 1000
		if math.Abs(s.DistanceM-want) > epsilon {
			t.Errorf("sample %d distance = %v, want %v", i, s.DistanceM, want)
		}
	}
}

func TestRevolutionDetector(t *testing.T) {
	tests := []struct {
		name      string
		starts    []float64
		wantSeen  []bool
		wantCount uint64
	}{
		{
			name:      "non-decreasing never ready",
			starts:    []float64{0, 10, 10, 120, 240, 359},
			wantSeen:  []bool{false, false, false, false, false, false},
			wantCount: 0,
		},
		{
			name:      "first backward jump sets ready",
			starts:    []float64{0, 120, 240, 5, 125},
			wantSeen:  []bool{false, false, false, true, true},
			wantCount: 1,
		},
		{
			name:      "negative first start counts against zero",
			starts:    []float64{-5, 0},
			wantSeen:  []bool{true, true},
			wantCount: 1,
		},
		{
			name:      "every wrap is counted",
			starts:    []float64{100, 200, 10, 200, 10},
			wantSeen:  []bool{false, false, true, true, true},
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d RevolutionDetector
			for i, start := range tt.starts {
				d.Observe(start)
				if d.Seen() != tt.wantSeen[i] {
					t.Fatalf("after start %v (#%d) Seen() = %v, want %v", start, i, d.Seen(), tt.wantSeen[i])
				}
				if d.PreviousDeg() != start {
					t.Errorf("PreviousDeg() = %v, want %v", d.PreviousDeg(), start)
				}
			}
			if d.Boundaries() != tt.wantCount {
				t.Errorf("Boundaries() = %d, want %d", d.Boundaries(), tt.wantCount)
			}
		})
	}
}
