// Package serialport opens the byte source the capture driver reads from.
//
// The capture driver depends only on io.Reader. This package supplies the
// real go.bug.st/serial implementation plus test doubles with the same
// read semantics: a read that times out returns (0, nil).
package serialport

import (
	"errors"
	"io"
	"time"
)

// ErrPortClosed is returned by reads and writes on a closed port.
var ErrPortClosed = errors.New("serial port closed")

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// A port with a read timeout returns (0, nil) from Read when no byte
// arrived in time, which lets the capture loop notice a stop request.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Factory defines an interface for opening serial ports.
// This abstraction enables dependency injection of serial port creation.
type Factory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// Opener is a function type for opening serial ports. It implements Factory.
type Opener func(path string, opts PortOptions) (SerialPorter, error)

// Open calls f.
func (f Opener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}
