package teleop

import (
	"context"
	"testing"
	"time"

	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

func sampleAt(addr byte, roll, pitch, yaw float64, at time.Time) witimu.Sample {
	return witimu.Sample{
		Addr:  addr,
		Time:  at,
		Angle: [3]float64{roll, pitch, yaw},
	}
}

// startTracker runs the tracker state goroutine for the duration of the test.
func startTracker(t *testing.T, tracker *Tracker) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tracker.Run(ctx)
	return ctx
}

// waitSensor polls snapshots until sensor i is valid. The state goroutine
// consumes offered samples asynchronously.
func waitSensor(t *testing.T, ctx context.Context, tracker *Tracker, i int) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := tracker.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Sensors[i].Valid {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("sensor %d never became valid", i)
	return Snapshot{}
}

func TestTrackerStoresNormalizedSamples(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	tracker := NewTracker([]byte{0x50, 0x51}, pose.NewYawNormalizer(pose.YawModeNormal), clock)
	ctx := startTracker(t, tracker)

	// First valid frame records the yaw offset, so normalized yaw is 0.
	tracker.Offer(sampleAt(0x50, 5, -3, 90, clock.Now()))
	snap := waitSensor(t, ctx, tracker, 0)

	got := snap.Sensors[0].Euler
	if got.Roll != 5 || got.Pitch != -3 || got.Yaw != 0 {
		t.Errorf("sensor 0 euler = %+v, want roll 5 pitch -3 yaw 0", got)
	}
	if snap.Sensors[1].Valid {
		t.Error("sensor 1 valid without any sample")
	}

	// A later frame reports yaw relative to the recorded offset.
	tracker.Offer(sampleAt(0x50, 5, -3, 100, clock.Now()))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := tracker.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Sensors[0].Euler.Yaw == 10 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("normalized yaw never reached 10")
}

// TestTrackerDropsInvalidFrames confirms all-zero frames neither update
// state nor record a yaw offset.
func TestTrackerDropsInvalidFrames(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	normalizer := pose.NewYawNormalizer(pose.YawModeNormal)
	tracker := NewTracker([]byte{0x50}, normalizer, clock)
	ctx := startTracker(t, tracker)

	tracker.Offer(sampleAt(0x50, 0, 0, 0, clock.Now()))
	tracker.Offer(sampleAt(0x50, 0, 0, 45, clock.Now()))
	snap := waitSensor(t, ctx, tracker, 0)

	// The offset must come from the 45 degree frame, not the zero frame.
	if got := snap.Sensors[0].Euler.Yaw; got != 0 {
		t.Errorf("normalized yaw = %v, want 0 (offset from first valid frame)", got)
	}
	if !normalizer.Ready([]byte{0x50}) {
		t.Error("normalizer not ready after a valid frame")
	}
}

func TestTrackerIgnoresUnknownSensor(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	tracker := NewTracker([]byte{0x50}, pose.NewYawNormalizer(pose.YawModeSimple), clock)
	ctx := startTracker(t, tracker)

	tracker.Offer(sampleAt(0x7F, 1, 2, 3, clock.Now()))
	tracker.Offer(sampleAt(0x50, 1, 2, 3, clock.Now()))
	snap := waitSensor(t, ctx, tracker, 0)

	if len(snap.Sensors) != 1 {
		t.Fatalf("snapshot has %d sensors, want 1", len(snap.Sensors))
	}
}

func TestSnapshotOnline(t *testing.T) {
	now := time.Unix(2000, 0)
	snap := Snapshot{
		At: now,
		Sensors: []SensorState{
			{Valid: true, LastUpdate: now.Add(-500 * time.Millisecond)},
			{Valid: true, LastUpdate: now.Add(-1500 * time.Millisecond)},
		},
	}

	if !snap.Sensors[0].Online(now, DefaultOnlineWindow) {
		t.Error("fresh sensor reported offline")
	}
	if snap.Sensors[1].Online(now, DefaultOnlineWindow) {
		t.Error("stale sensor reported online")
	}
	if snap.AllOnline(DefaultOnlineWindow) {
		t.Error("AllOnline true with a stale sensor")
	}

	snap.Sensors[1].LastUpdate = now.Add(-100 * time.Millisecond)
	if !snap.AllOnline(DefaultOnlineWindow) {
		t.Error("AllOnline false with fresh sensors")
	}
}

// TestSnapshotIsCopy confirms later samples do not mutate an issued
// snapshot.
func TestSnapshotIsCopy(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	tracker := NewTracker([]byte{0x50}, pose.NewYawNormalizer(pose.YawModeSimple), clock)
	ctx := startTracker(t, tracker)

	tracker.Offer(sampleAt(0x50, 1, 1, 1, clock.Now()))
	snap := waitSensor(t, ctx, tracker, 0)
	before := snap.Sensors[0].Euler

	tracker.Offer(sampleAt(0x50, 9, 9, 9, clock.Now()))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fresh, err := tracker.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if fresh.Sensors[0].Euler.Roll == 9 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if snap.Sensors[0].Euler != before {
		t.Errorf("issued snapshot mutated: %+v", snap.Sensors[0].Euler)
	}
}
