// Package l1packets owns Layer 1 (Packets) of the range scan data model.
//
// Responsibilities: framing the sensor's serial byte stream, decoding the
// fixed-layout packet body and reporting transport faults. This layer
// produces raw packets consumed by L2 (Frames).
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1packets
