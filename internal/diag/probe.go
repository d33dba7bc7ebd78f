package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

// DefaultScanAddrs is the address range the rig's sensors ship in.
var DefaultScanAddrs = []byte{0x50, 0x51, 0x52, 0x53, 0x54, 0x55}

// DefaultBauds is the baud scan order: likely rates first.
var DefaultBauds = []int{9600, 115200, 38400, 19200, 4800, 57600}

// BaudScanAddrs are the addresses probed per baud rate: the three configured
// sensors plus the factory default.
var BaudScanAddrs = []byte{0x50, 0x51, 0x52, 0x01}

// RegisterBus is the bus surface the probes need.
type RegisterBus interface {
	ReadRegisters(ctx context.Context, addr byte, reg uint16, count int) ([]int16, error)
}

// ProbeResult is one address probe. Angles carries the decoded euler angles
// when the device answered.
type ProbeResult struct {
	Addr   byte        `json:"addr"`
	OK     bool        `json:"ok"`
	Angles *[3]float64 `json:"angles,omitempty"`
	Err    string      `json:"err,omitempty"`
}

// ProbeAddress reads the measurement block from addr and decodes it.
func ProbeAddress(ctx context.Context, bus RegisterBus, addr byte) ProbeResult {
	registers, err := bus.ReadRegisters(ctx, addr, witimu.BlockStart, witimu.BlockCount)
	if err != nil {
		return ProbeResult{Addr: addr, Err: err.Error()}
	}
	result := ProbeResult{Addr: addr, OK: true}
	if sample, err := witimu.DecodeBlock(addr, registers, time.Now()); err == nil {
		angles := sample.Angle
		result.Angles = &angles
	}
	return result
}

// ScanBus probes each address in turn.
func ScanBus(ctx context.Context, bus RegisterBus, addrs []byte) []ProbeResult {
	results := make([]ProbeResult, 0, len(addrs))
	for _, addr := range addrs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, ProbeAddress(ctx, bus, addr))
	}
	return results
}

// BaudHit is one working (baud, address) combination found by a baud scan.
type BaudHit struct {
	Baud int  `json:"baud"`
	Addr byte `json:"addr"`
}

// BaudScanner sweeps baud rates looking for sensors configured off the rig
// default. Factory opens the port fresh per baud rate.
type BaudScanner struct {
	Factory modbus.PortFactory
	Bauds   []int
	Addrs   []byte
}

// NewBaudScanner returns a scanner over real serial ports with the default
// baud and address matrix.
func NewBaudScanner() *BaudScanner {
	return &BaudScanner{
		Factory: modbus.SerialFactory{},
		Bauds:   DefaultBauds,
		Addrs:   BaudScanAddrs,
	}
}

// Scan probes every baud and address combination on the port at path. Open
// failures end the scan; probe failures are the expected case and only
// logged.
func (s *BaudScanner) Scan(ctx context.Context, path string) ([]BaudHit, error) {
	var hits []BaudHit
	for _, baud := range s.Bauds {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		found, err := s.scanBaud(ctx, path, baud)
		if err != nil {
			return hits, fmt.Errorf("baud %d: %w", baud, err)
		}
		for _, addr := range found {
			hits = append(hits, BaudHit{Baud: baud, Addr: addr})
		}
	}
	return hits, nil
}

func (s *BaudScanner) scanBaud(ctx context.Context, path string, baud int) ([]byte, error) {
	port, err := s.Factory.Open(path, modbus.PortOptions{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	bus := modbus.NewBus(port)
	defer bus.Close()

	monitoring.Debugf("diag: scanning %s at %d baud", path, baud)
	return bus.Scan(ctx, s.Addrs, witimu.BlockStart, witimu.BlockCount)
}
