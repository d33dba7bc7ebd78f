package teleop

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

func TestGripperSteps(t *testing.T) {
	g := NewGripper(0.25)

	if got := g.Value(); got != 0 {
		t.Fatalf("new gripper = %v, want 0 (closed)", got)
	}

	for i, want := range []float64{0.25, 0.5, 0.75, 1, 1} {
		if got := g.Open(); got != want {
			t.Errorf("Open %d = %v, want %v", i+1, got, want)
		}
	}
	for i, want := range []float64{0.75, 0.5, 0.25, 0, 0} {
		if got := g.Close(); got != want {
			t.Errorf("Close %d = %v, want %v", i+1, got, want)
		}
	}
}

func TestGripperSetClamps(t *testing.T) {
	g := NewGripper(0.01)
	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{-3, 0},
		{7, 1},
		{1, 1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := g.Set(tt.in); got != tt.want {
			t.Errorf("Set(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// keyTestControl drives a KeyController with a mock clock and a pipe for
// keystrokes. Tests fire hold updates directly instead of waiting for the
// ticker.
type keyTestControl struct {
	controller *KeyController
	clock      *timeutil.MockClock
	keys       io.Writer
	done       chan error
}

func startKeyController(t *testing.T, g *Gripper) *keyTestControl {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	controller := NewKeyController(g, clock)

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- controller.Run(ctx, pr)
	}()

	return &keyTestControl{
		controller: controller,
		clock:      clock,
		keys:       pw,
		done:       done,
	}
}

// press writes a key and waits until the controller has recorded it.
func (k *keyTestControl) press(t *testing.T, key byte) {
	t.Helper()
	if _, err := k.keys.Write([]byte{key}); err != nil {
		t.Fatalf("write key: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		k.controller.mu.Lock()
		recorded := k.controller.key == key
		k.controller.mu.Unlock()
		if recorded {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("key %q never recorded", key)
}

func TestKeyControllerHoldOpensAndCloses(t *testing.T) {
	g := NewGripper(0.1)
	k := startKeyController(t, g)

	// While 1 is held, each hold update opens one step.
	k.press(t, '1')
	k.controller.holdUpdate()
	k.controller.holdUpdate()
	if got := g.Value(); got != 0.2 {
		t.Errorf("after two hold updates = %v, want 0.2", got)
	}

	// 2 switches direction.
	k.press(t, '2')
	k.controller.holdUpdate()
	if got := g.Value(); got != 0.1 {
		t.Errorf("after close update = %v, want 0.1", got)
	}
}

// TestKeyControllerReleaseStops confirms the gripper stops once the key
// repeat goes stale.
func TestKeyControllerReleaseStops(t *testing.T) {
	g := NewGripper(0.1)
	k := startKeyController(t, g)

	k.press(t, '1')
	k.controller.holdUpdate()
	if got := g.Value(); got != 0.1 {
		t.Fatalf("after hold update = %v, want 0.1", got)
	}

	// Past the hold window with no repeat the key counts as released.
	k.clock.Advance(keyHoldWindow + time.Millisecond)
	k.controller.holdUpdate()
	k.controller.holdUpdate()
	if got := g.Value(); got != 0.1 {
		t.Errorf("after release = %v, want 0.1 (no further motion)", got)
	}
}

func TestKeyControllerQuit(t *testing.T) {
	g := NewGripper(0.1)
	k := startKeyController(t, g)

	if _, err := k.keys.Write([]byte{'q'}); err != nil {
		t.Fatalf("write key: %v", err)
	}
	select {
	case err := <-k.done:
		if !errors.Is(err, ErrQuit) {
			t.Errorf("Run returned %v, want ErrQuit", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after q")
	}
}

func TestKeyControllerEOF(t *testing.T) {
	g := NewGripper(0.1)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	controller := NewKeyController(g, clock)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- controller.Run(context.Background(), pr)
	}()
	pw.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Run returned %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
}
