// Package publish turns capture snapshots into range-scan messages on a
// fixed cadence and fans them out to sinks (the gRPC scan bus, the sqlite
// recorder, the HTTP monitor).
package publish

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults for Options fields left at zero.
const (
	DefaultFrameID  = "map"
	DefaultRangeMin = 0.08
	DefaultRangeMax = 1.0
)

// ErrEmptyScan is returned when a scan has no samples.
var ErrEmptyScan = errors.New("scan has no samples")

// LaserScan is one published range scan. Angles are radians, ranges metres.
// Ranges are in the capture ring's slot order; no intensities are carried.
// Angles holds the angle of each slot so consumers that plot or store the
// scan need not assume Ranges is sorted.
type LaserScan struct {
	Seq            uint64     `json:"seq"`
	Stamp          time.Time  `json:"stamp"`
	FrameID        string     `json:"frame_id"`
	AngleMin       float64    `json:"angle_min"`
	AngleMax       float64    `json:"angle_max"`
	AngleIncrement float64    `json:"angle_increment"`
	TimeIncrement  float64    `json:"time_increment"`
	ScanTime       float64    `json:"scan_time"`
	RangeMin       float64    `json:"range_min"`
	RangeMax       float64    `json:"range_max"`
	Ranges         []float64  `json:"ranges"`
	Angles         []float64  `json:"angles,omitempty"`
	Stats          *ScanStats `json:"stats,omitempty"`
}

// Options fixes the message fields that do not come from the scan.
type Options struct {
	FrameID  string
	RangeMin float64
	RangeMax float64
}

func (o Options) withDefaults() Options {
	if o.FrameID == "" {
		o.FrameID = DefaultFrameID
	}
	if o.RangeMin == 0 && o.RangeMax == 0 {
		o.RangeMin, o.RangeMax = DefaultRangeMin, DefaultRangeMax
	}
	return o
}

// BuildLaserScan builds a message from a capture snapshot. The angle bounds
// are the minimum and maximum over all angles, which does not depend on
// slot order, and the increment is their span divided by the sample count.
// distances becomes Ranges and angles becomes Angles without copying. rpm sets ScanTime when positive.
func BuildLaserScan(angles, distances []float64, rpm float64, stamp time.Time, opts Options) (*LaserScan, error) {
	if len(angles) == 0 || len(distances) == 0 {
		return nil, ErrEmptyScan
	}
	if len(angles) != len(distances) {
		return nil, errors.New("angle and distance counts differ")
	}
	opts = opts.withDefaults()

	lo, hi := floats.Min(angles), floats.Max(angles)
	scan := &LaserScan{
		Stamp:          stamp,
		FrameID:        opts.FrameID,
		AngleMin:       lo,
		AngleMax:       hi,
		AngleIncrement: (hi - lo) / float64(len(angles)),
		TimeIncrement:  0,
		RangeMin:       opts.RangeMin,
		RangeMax:       opts.RangeMax,
		Ranges:         distances,
		Angles:         angles,
	}
	if rpm > 0 {
		scan.ScanTime = 60 / rpm
	}
	stats := ComputeStats(distances, opts.RangeMin, opts.RangeMax)
	scan.Stats = &stats
	return scan, nil
}

// ScanStats summarises the in-range distances of a scan.
type ScanStats struct {
	Total    int     `json:"total"`
	Valid    int     `json:"valid"`
	Coverage float64 `json:"coverage"` // Valid / Total
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// ComputeStats counts the ranges within [rangeMin, rangeMax] and computes
// their mean, standard deviation and extremes. Values are zero when fewer
// than two ranges are valid, except Min, Max and Mean for a single one.
func ComputeStats(ranges []float64, rangeMin, rangeMax float64) ScanStats {
	s := ScanStats{Total: len(ranges)}
	valid := make([]float64, 0, len(ranges))
	for _, r := range ranges {
		if r >= rangeMin && r <= rangeMax && !math.IsNaN(r) {
			valid = append(valid, r)
		}
	}
	s.Valid = len(valid)
	if s.Total > 0 {
		s.Coverage = float64(s.Valid) / float64(s.Total)
	}
	if s.Valid == 0 {
		return s
	}

	s.Min = floats.Min(valid)
	s.Max = floats.Max(valid)
	if s.Valid == 1 {
		s.Mean = valid[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(valid, nil)
	return s
}
