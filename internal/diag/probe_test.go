package diag

import (
	"context"
	"errors"
	"testing"

	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

// fakeBus answers ReadRegisters for a fixed set of addresses.
type fakeBus struct {
	registers map[byte][]int16
}

func (f *fakeBus) ReadRegisters(ctx context.Context, addr byte, reg uint16, count int) ([]int16, error) {
	regs, ok := f.registers[addr]
	if !ok {
		return nil, modbus.ErrTimeout
	}
	if reg != witimu.BlockStart || count != witimu.BlockCount {
		return nil, errors.New("unexpected register window")
	}
	return regs, nil
}

// sensorBlock builds a full measurement block with the given euler angles in
// raw LSB.
func sensorBlock(roll, pitch, yaw int16) []int16 {
	block := make([]int16, witimu.BlockCount)
	block[9], block[10], block[11] = roll, pitch, yaw
	return block
}

func TestProbeAddress(t *testing.T) {
	bus := &fakeBus{registers: map[byte][]int16{
		0x50: sensorBlock(0, 0, 16384), // yaw = 90 deg
	}}

	result := ProbeAddress(context.Background(), bus, 0x50)
	if !result.OK {
		t.Fatalf("probe of present sensor failed: %+v", result)
	}
	if result.Angles == nil {
		t.Fatal("probe returned no angles")
	}
	if yaw := result.Angles[2]; yaw < 89.9 || yaw > 90.1 {
		t.Errorf("decoded yaw = %v, want 90", yaw)
	}

	result = ProbeAddress(context.Background(), bus, 0x51)
	if result.OK {
		t.Errorf("probe of absent sensor succeeded: %+v", result)
	}
	if result.Err == "" {
		t.Error("failed probe carries no error detail")
	}
}

func TestScanBus(t *testing.T) {
	bus := &fakeBus{registers: map[byte][]int16{
		0x50: sensorBlock(0, 0, 0),
		0x52: sensorBlock(0, 0, 0),
	}}

	results := ScanBus(context.Background(), bus, DefaultScanAddrs)
	if len(results) != len(DefaultScanAddrs) {
		t.Fatalf("got %d results, want %d", len(results), len(DefaultScanAddrs))
	}
	var found []byte
	for _, r := range results {
		if r.OK {
			found = append(found, r.Addr)
		}
	}
	if len(found) != 2 || found[0] != 0x50 || found[1] != 0x52 {
		t.Errorf("responders = %X, want [50 52]", found)
	}
}

// respondingPort builds a TestablePort that answers read requests for the
// given addresses like sensors on the bus would.
func respondingPort(addrs ...byte) *modbus.TestablePort {
	present := make(map[byte]bool, len(addrs))
	for _, a := range addrs {
		present[a] = true
	}
	port := modbus.NewTestablePort()
	port.AutoRespond = func(request []byte) []byte {
		if len(request) != 8 || request[1] != 0x03 || !present[request[0]] {
			return nil
		}
		count := int(request[4])<<8 | int(request[5])
		frame := []byte{request[0], 0x03, byte(2 * count)}
		frame = append(frame, make([]byte, 2*count)...)
		return modbus.AppendCRC(frame)
	}
	return port
}

func TestBaudScanFindsSensors(t *testing.T) {
	// A sensor left at the factory address answers only at 115200 baud.
	factory := &modbus.MockPortFactory{}
	factory.OpenFunc = func(path string, opts modbus.PortOptions) (modbus.Porter, error) {
		if opts.BaudRate == 115200 {
			return respondingPort(0x01), nil
		}
		return modbus.NewTestablePort(), nil
	}

	s := &BaudScanner{Factory: factory, Bauds: DefaultBauds, Addrs: BaudScanAddrs}
	hits, err := s.Scan(context.Background(), "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(hits) != 1 || hits[0].Baud != 115200 || hits[0].Addr != 0x01 {
		t.Errorf("hits = %+v, want one at 115200/0x01", hits)
	}
	if len(factory.OpenCalls) != len(DefaultBauds) {
		t.Errorf("opened %d times, want once per baud (%d)", len(factory.OpenCalls), len(DefaultBauds))
	}
}

func TestBaudScanOpenFailure(t *testing.T) {
	factory := &modbus.MockPortFactory{Error: errors.New("device busy")}
	s := &BaudScanner{Factory: factory, Bauds: []int{9600}, Addrs: BaudScanAddrs}
	if _, err := s.Scan(context.Background(), "/dev/ttyUSB0"); err == nil {
		t.Error("Scan swallowed the open error")
	}
}
