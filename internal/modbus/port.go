package modbus

import (
	"io"
	"time"
)

// Porter defines the minimal interface the bus needs from a serial port.
// This abstraction enables unit testing without real RS485 hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with read timeout support. Real ports
// implement it; the bus uses it to bound each read so transaction deadlines
// hold even when the device never answers.
type TimeoutPorter interface {
	Porter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// PortFactory defines an interface for opening serial ports.
// This abstraction enables dependency injection of port creation.
type PortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (Porter, error)
}
