// Package capture runs the background read loop that turns a sensor byte
// stream into a continuously updated range scan.
//
// A Driver owns one scan ring and the capture state (ready flag, rpm,
// previous start angle, statistics). The read loop is the only writer; any
// number of consumers read snapshots concurrently. Ring writes for one
// packet and the state updates that go with them happen under a single
// mutex, which is also held while a consumer copies the ring, so a snapshot
// never contains part of a packet. Byte reads happen outside the lock.
//
// Lifecycle is Created → Running → Stopped. Stopped is terminal: a driver
// whose source failed is replaced, not restarted.
package capture
