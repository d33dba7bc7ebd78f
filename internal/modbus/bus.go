// Package modbus implements the Modbus RTU framing and half-duplex bus
// transactions used to talk to WIT motion sensors over RS485. A Bus owns a
// single serial port; transactions are serialized because only one device
// may drive the wire at a time.
package modbus

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

var (
	ErrTimeout      = fmt.Errorf("response timed out")
	ErrWriteFailed  = fmt.Errorf("short write to serial port")
	ErrEchoMismatch = fmt.Errorf("write echo mismatch")
)

const (
	// DefaultTimeout is the per-transaction response deadline.
	DefaultTimeout = 200 * time.Millisecond

	// DefaultGap is the quiet time enforced between transactions so the
	// previous device can release the shared RS485 pair.
	DefaultGap = 5 * time.Millisecond

	// readSlice bounds each port read so the loop can check the deadline.
	readSlice = 20 * time.Millisecond

	// readPoll is the wait between empty reads on ports without timeouts.
	readPoll = time.Millisecond
)

// Bus wraps a serial port with serialized Modbus RTU transactions. Completed
// transactions are mirrored to subscribers for the live tail page.
type Bus struct {
	port Porter

	// Timeout is the per-transaction response deadline.
	Timeout time.Duration

	// Gap is the quiet time enforced between transactions.
	Gap time.Duration

	txMu    sync.Mutex
	lastEnd time.Time
	clock   timeutil.Clock

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
}

// NewBus creates a Bus over an open serial port.
func NewBus(port Porter) *Bus {
	return &Bus{
		port:        port,
		Timeout:     DefaultTimeout,
		Gap:         DefaultGap,
		clock:       timeutil.RealClock{},
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving one line per completed transaction,
// formatted as hex. The returned ID identifies the channel when unsubscribing.
func (b *Bus) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 8)
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the bus.
func (b *Bus) Unsubscribe(id string) {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Bus) publish(line string) {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
			// skip subscribers that are not keeping up rather than block the bus
		}
	}
}

// Transact writes a request frame and reads the response until want bytes
// have arrived or the deadline passes. The response may run past want if the
// port delivers a larger final chunk; callers validate with ParseReadResponse.
func (b *Bus) Transact(ctx context.Context, req []byte, want int) ([]byte, error) {
	return b.transact(ctx, req, want, true)
}

// TransactRaw writes a request frame and reads whatever arrives before the
// deadline, up to max bytes. Unlike Transact, a deadline with partial data is
// not an error. Used by the send-frame debug page where the response length
// is unknown.
func (b *Bus) TransactRaw(ctx context.Context, req []byte, max int) ([]byte, error) {
	return b.transact(ctx, req, max, false)
}

func (b *Bus) transact(ctx context.Context, req []byte, limit int, exact bool) ([]byte, error) {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	if b.Gap > 0 && !b.lastEnd.IsZero() {
		if wait := b.Gap - b.clock.Since(b.lastEnd); wait > 0 {
			b.clock.Sleep(wait)
		}
	}
	defer func() { b.lastEnd = b.clock.Now() }()

	if tp, ok := b.port.(TimeoutPorter); ok {
		if err := tp.SetReadTimeout(readSlice); err != nil {
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}

	n, err := b.port.Write(req)
	if err != nil {
		b.publish(fmt.Sprintf("tx % X write error: %v", req, err))
		return nil, fmt.Errorf("write request: %w", err)
	}
	if n != len(req) {
		b.publish(fmt.Sprintf("tx % X short write", req))
		return nil, ErrWriteFailed
	}

	deadline := b.clock.Now().Add(b.Timeout)
	buf := make([]byte, 0, limit)
	chunk := make([]byte, 256)
	for len(buf) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !b.clock.Now().Before(deadline) {
			if !exact && len(buf) > 0 {
				break
			}
			b.publish(fmt.Sprintf("tx % X rx timeout", req))
			return nil, ErrTimeout
		}

		n, err := b.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		// io.EOF from a drained mock buffer means no data yet, same as a
		// zero-byte read from a real port whose timeout expired.
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read response: %w", err)
		}
		b.clock.Sleep(readPoll)
	}

	b.publish(fmt.Sprintf("tx % X rx % X", req, buf))
	return buf, nil
}

// ReadRegisters reads count holding registers from addr starting at reg and
// returns them as signed 16-bit values.
func (b *Bus) ReadRegisters(ctx context.Context, addr byte, reg uint16, count int) ([]int16, error) {
	req := BuildReadRequest(addr, reg, uint16(count))
	resp, err := b.Transact(ctx, req, ReadResponseLength(count))
	if err != nil {
		return nil, err
	}
	return ParseReadResponse(addr, resp)
}

// WriteRegister writes value to a single holding register on addr and
// verifies the device echoed the request back.
func (b *Bus) WriteRegister(ctx context.Context, addr byte, reg uint16, value uint16) error {
	req := BuildWriteRequest(addr, reg, value)
	resp, err := b.Transact(ctx, req, len(req))
	if err != nil {
		return err
	}
	if !bytes.Equal(resp, req) {
		return fmt.Errorf("%w: got % X", ErrEchoMismatch, resp)
	}
	return nil
}

// Scan probes each address with a read of count registers at reg and returns
// the addresses that answered with a valid response. Probe failures are
// expected on a scan and are not reported as errors.
func (b *Bus) Scan(ctx context.Context, addrs []byte, reg uint16, count int) ([]byte, error) {
	var found []byte
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if _, err := b.ReadRegisters(ctx, addr, reg, count); err == nil {
			found = append(found, addr)
		}
	}
	return found, nil
}

// Close closes all subscriber channels and the underlying serial port.
func (b *Bus) Close() error {
	b.subscriberMu.Lock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.subscriberMu.Unlock()
	return b.port.Close()
}
