package teleop

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// DefaultGripperStep is how much one update nudges the gripper.
const DefaultGripperStep = 0.01

// Gripper key hold behavior. A key counts as held while the terminal's
// autorepeat keeps delivering it; once keyHoldWindow passes with no repeat
// the key is released. While held the value is nudged every holdInterval.
const (
	keyHoldWindow = 100 * time.Millisecond
	holdInterval  = 20 * time.Millisecond
)

// ErrQuit is returned by KeyController.Run when the operator presses q.
var ErrQuit = errors.New("quit requested")

// Gripper holds the commanded gripper opening: 0 is fully closed, 1 fully
// open. Safe for concurrent use; the key controller writes it while the
// publish loop reads it.
type Gripper struct {
	mu    sync.Mutex
	value float64
	step  float64
}

// NewGripper creates a closed gripper with the given step per update.
func NewGripper(step float64) *Gripper {
	if step <= 0 {
		step = DefaultGripperStep
	}
	return &Gripper{step: step}
}

// Value returns the current opening.
func (g *Gripper) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Open nudges the gripper open by one step and returns the new value.
func (g *Gripper) Open() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = min(1, g.value+g.step)
	return g.value
}

// Close nudges the gripper closed by one step and returns the new value.
func (g *Gripper) Close() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = max(0, g.value-g.step)
	return g.value
}

// Set clamps v into [0,1] and stores it, returning the stored value.
func (g *Gripper) Set(v float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = min(1, max(0, v))
	return g.value
}

// KeyController drives a gripper from single-key input: holding 1 opens,
// holding 2 closes, q quits. The caller is responsible for putting the
// terminal into raw mode so keys arrive without line buffering.
type KeyController struct {
	gripper *Gripper
	clock   timeutil.Clock

	mu      sync.Mutex
	key     byte
	keyTime time.Time
}

// NewKeyController creates a controller for g.
func NewKeyController(g *Gripper, clock timeutil.Clock) *KeyController {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &KeyController{gripper: g, clock: clock}
}

// Run reads keys from input and applies hold updates until ctx is cancelled,
// input closes, or the operator presses q (ErrQuit). The read goroutine
// blocks on input; when ctx ends first it is abandoned and exits with the
// process.
func (k *KeyController) Run(ctx context.Context, input io.Reader) error {
	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := input.Read(buf)
			if n > 0 {
				select {
				case keys <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := k.clock.NewTicker(holdInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case key, ok := <-keys:
			if !ok {
				return io.EOF
			}
			switch key {
			case '1', '2':
				k.press(key)
			case 'q', 'Q':
				monitoring.Logf("gripper: quit key pressed")
				return ErrQuit
			}

		case <-ticker.C():
			k.holdUpdate()
		}
	}
}

func (k *KeyController) press(key byte) {
	k.mu.Lock()
	k.key = key
	k.keyTime = k.clock.Now()
	k.mu.Unlock()
}

// holdUpdate applies one step while a key is held. Autorepeat keeps keyTime
// fresh; once it goes stale the key is treated as released.
func (k *KeyController) holdUpdate() {
	k.mu.Lock()
	key := k.key
	if key != 0 && k.clock.Since(k.keyTime) > keyHoldWindow {
		k.key = 0
		key = 0
	}
	k.mu.Unlock()

	switch key {
	case '1':
		k.gripper.Open()
	case '2':
		k.gripper.Close()
	}
}
