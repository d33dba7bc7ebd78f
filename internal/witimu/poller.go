package witimu

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// DefaultPollInterval is the wait after each transaction. Three sensors at
// this interval give each one a fresh sample roughly every 60ms.
const DefaultPollInterval = 20 * time.Millisecond

// failureLogThreshold is the consecutive-failure count at which a sensor is
// reported as unresponsive. The online tracker works from sample recency;
// this only controls logging.
const failureLogThreshold = 5

// RegisterReader is the bus surface the poller needs.
type RegisterReader interface {
	ReadRegisters(ctx context.Context, addr byte, reg uint16, count int) ([]int16, error)
}

// Poller reads the measurement block from each configured sensor in turn and
// hands decoded samples to a callback. One poller owns the bus schedule; the
// bus itself serializes transactions.
type Poller struct {
	bus      RegisterReader
	addrs    []byte
	onSample func(Sample)

	// Interval is the wait after each transaction.
	Interval time.Duration

	clock timeutil.Clock

	mu       sync.Mutex
	failures map[byte]int
}

// NewPoller creates a poller over bus for the given sensor addresses.
// onSample is called from the polling goroutine for each decoded sample.
func NewPoller(bus RegisterReader, addrs []byte, onSample func(Sample)) *Poller {
	return &Poller{
		bus:      bus,
		addrs:    addrs,
		onSample: onSample,
		Interval: DefaultPollInterval,
		clock:    timeutil.RealClock{},
		failures: make(map[byte]int),
	}
}

// Run polls round-robin until ctx is cancelled. It always returns the
// context's error; bus errors are counted per sensor, not returned, since a
// sensor dropping off the RS485 chain must not stop the others.
func (p *Poller) Run(ctx context.Context) error {
	for {
		for _, addr := range p.addrs {
			if err := ctx.Err(); err != nil {
				return err
			}

			registers, err := p.bus.ReadRegisters(ctx, addr, BlockStart, BlockCount)
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				p.recordFailure(addr, err)
			default:
				p.recordSuccess(addr)
				sample, err := DecodeBlock(addr, registers, p.clock.Now())
				if err != nil {
					monitoring.Logf("imu 0x%02X: %v", addr, err)
					break
				}
				if p.onSample != nil {
					p.onSample(sample)
				}
			}

			p.clock.Sleep(p.Interval)
		}
	}
}

func (p *Poller) recordFailure(addr byte, err error) {
	p.mu.Lock()
	p.failures[addr]++
	count := p.failures[addr]
	p.mu.Unlock()

	monitoring.Debugf("imu 0x%02X: poll failed (%d consecutive): %v", addr, count, err)
	if count == failureLogThreshold {
		monitoring.Logf("imu 0x%02X: unresponsive after %d consecutive poll failures: %v", addr, count, err)
	}
}

func (p *Poller) recordSuccess(addr byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[addr] >= failureLogThreshold {
		monitoring.Logf("imu 0x%02X: responding again", addr)
	}
	p.failures[addr] = 0
}

// ConsecutiveFailures returns the current consecutive poll failure count for
// a sensor address.
func (p *Poller) ConsecutiveFailures(addr byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[addr]
}
