package l2frames

import (
	"github.com/banshee-data/rangescan/internal/lidar/l1packets/parse"
	"github.com/banshee-data/rangescan/internal/units"
)

// Sample is one range reading in physical units.
type Sample struct {
	AngleRad  float64
	DistanceM float64
}

// Expand converts a packet into its samples.
//
// The packet's arc runs from its start angle to its end angle; an end angle
// below the start angle means the arc crossed 0° and 360° is added to it.
// When invert is set both angles are negated, which mirrors a sensor mounted
// upside down. The eight samples are spaced evenly from the start angle with
// a step of one eighth of the arc, so the end angle itself is never emitted.
func Expand(p parse.RawPacket, invert bool) [parse.SAMPLES_PER_PACKET]Sample {
	startDeg := p.StartAngleDeg()
	endDeg := p.EndAngleDeg()
	if endDeg < startDeg {
		endDeg += 360
	}

	start := units.DegToRad(startDeg)
	end := units.DegToRad(endDeg)
	if invert {
		start, end = -start, -end
	}
	inc := (end - start) / parse.SAMPLES_PER_PACKET

	var out [parse.SAMPLES_PER_PACKET]Sample
	for i, s := range p.Samples {
		out[i] = Sample{
			AngleRad:  start + inc*float64(i),
			DistanceM: units.MillimetresToMetres(s.DistanceRaw),
		}
	}
	return out
}

// RevolutionDetector reports the first backward jump of packet start
// angles. Once seen, the flag stays set.
type RevolutionDetector struct {
	previousDeg float64
	seen        bool
	boundaries  uint64
}

// Observe records a packet start angle and reports whether it closed a
// revolution. The previous angle starts at 0°, so a first packet with a
// negative start angle already counts as a boundary.
func (d *RevolutionDetector) Observe(startDeg float64) bool {
	wrapped := startDeg < d.previousDeg
	d.previousDeg = startDeg
	if wrapped {
		d.seen = true
		d.boundaries++
	}
	return wrapped
}

// Seen reports whether any revolution boundary has been observed.
func (d *RevolutionDetector) Seen() bool { return d.seen }

// Boundaries returns the number of boundaries observed.
func (d *RevolutionDetector) Boundaries() uint64 { return d.boundaries }

// PreviousDeg returns the last observed start angle.
func (d *RevolutionDetector) PreviousDeg() float64 { return d.previousDeg }
