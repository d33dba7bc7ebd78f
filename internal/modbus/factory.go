package modbus

import (
	"fmt"

	"go.bug.st/serial"
)

// SerialFactory opens real serial ports via go.bug.st/serial.
type SerialFactory struct{}

// Open opens the serial port at path with the given options.
func (SerialFactory) Open(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// OpenBus opens the serial port at path and wraps it in a Bus.
func OpenBus(path string, opts PortOptions) (*Bus, error) {
	port, err := SerialFactory{}.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewBus(port), nil
}
