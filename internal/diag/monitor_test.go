package diag

import (
	"context"
	"testing"
	"time"

	"github.com/armlink-data/teleop.rig/internal/fsutil"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

func TestMonitorReportsHotplug(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Readable: true, Writable: true})

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	m := NewMonitor(testLister(fs, nil, nil))
	m.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan PortChange, 8)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, func(c PortChange) { changes <- c })
	}()

	// The first snapshot reports everything present as added.
	initial := waitChange(t, changes)
	if len(initial.Added) != 1 || initial.Added[0] != "/dev/ttyUSB0" || len(initial.Removed) != 0 {
		t.Fatalf("initial change = %+v", initial)
	}

	fs.AddFile("/dev/ttyUSB1", fsutil.MemFile{Readable: true})
	change := pumpUntilChange(t, clock, changes)
	if len(change.Added) != 1 || change.Added[0] != "/dev/ttyUSB1" {
		t.Errorf("after plug: %+v, want ttyUSB1 added", change)
	}

	fs.Remove("/dev/ttyUSB0")
	change = pumpUntilChange(t, clock, changes)
	if len(change.Removed) != 1 || change.Removed[0] != "/dev/ttyUSB0" {
		t.Errorf("after unplug: %+v, want ttyUSB0 removed", change)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func waitChange(t *testing.T, changes chan PortChange) PortChange {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return PortChange{}
	}
}

// pumpUntilChange advances the mock clock until the monitor reports, giving
// the monitor goroutine time to register its ticker first.
func pumpUntilChange(t *testing.T, clock *timeutil.MockClock, changes chan PortChange) PortChange {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			return c
		case <-deadline:
			t.Fatal("no change reported")
			return PortChange{}
		default:
			clock.Advance(DefaultMonitorInterval)
			time.Sleep(time.Millisecond)
		}
	}
}
