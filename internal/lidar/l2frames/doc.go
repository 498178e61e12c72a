// Package l2frames owns Layer 2 (Frames) of the range scan data model.
//
// Responsibilities: expanding a decoded packet into per-sample angles and
// distances, storing samples in a fixed-capacity ring and detecting
// revolution boundaries.
// Key types: Sample, Ring, RevolutionDetector.
//
// Dependency rule: L2 may depend on L1, but never on the capture driver or
// anything that publishes scans. Nothing in this package takes a lock; the
// owner of a Ring serialises access to it.
package l2frames
