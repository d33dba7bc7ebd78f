package teleop

import (
	"context"
	"time"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

// DefaultOnlineWindow is how recently a sensor must have delivered a valid
// sample to count as online.
const DefaultOnlineWindow = time.Second

// SensorState is the latest normalized orientation from one sensor.
type SensorState struct {
	Euler      EulerDeg
	LastUpdate time.Time
	Valid      bool
}

// Online reports whether the sensor delivered a valid sample within window
// of now.
func (s SensorState) Online(now time.Time, window time.Duration) bool {
	return s.Valid && now.Sub(s.LastUpdate) < window
}

// Snapshot is a point-in-time copy of all sensor states, ordered as
// configured. The first two sensors drive the arm links, the last one the
// wrist orientation.
type Snapshot struct {
	At      time.Time
	Sensors []SensorState
}

// AllOnline reports whether every sensor is online within window.
func (s Snapshot) AllOnline(window time.Duration) bool {
	for _, sensor := range s.Sensors {
		if !sensor.Online(s.At, window) {
			return false
		}
	}
	return true
}

// AllSampled reports whether every sensor has delivered at least one frame.
func (s Snapshot) AllSampled() bool {
	for _, sensor := range s.Sensors {
		if !sensor.Valid {
			return false
		}
	}
	return true
}

// Tracker owns the per-sensor orientation state. A single goroutine (Run)
// consumes samples and answers snapshot requests, so readers never see a
// half-updated sensor. Samples stream in through Offer from the RS485
// poller or the BLE manager.
type Tracker struct {
	addrs      []byte
	normalizer *pose.YawNormalizer
	clock      timeutil.Clock

	samples   chan witimu.Sample
	snapshots chan chan Snapshot
}

// NewTracker creates a tracker for the given sensor addresses. Yaw values
// pass through the normalizer before they are stored.
func NewTracker(addrs []byte, normalizer *pose.YawNormalizer, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		addrs:      append([]byte(nil), addrs...),
		normalizer: normalizer,
		clock:      clock,
		samples:    make(chan witimu.Sample, 16),
		snapshots:  make(chan chan Snapshot),
	}
}

// Addrs returns the configured sensor addresses in order.
func (t *Tracker) Addrs() []byte {
	return t.addrs
}

// Normalizer returns the yaw normalizer the tracker feeds.
func (t *Tracker) Normalizer() *pose.YawNormalizer {
	return t.normalizer
}

// Offer hands a sample to the tracker. It never blocks; when the state
// goroutine is not keeping up the sample is dropped, since only the latest
// orientation matters.
func (t *Tracker) Offer(s witimu.Sample) {
	select {
	case t.samples <- s:
	default:
		monitoring.Debugf("tracker: dropped sample from imu 0x%02X", s.Addr)
	}
}

// Snapshot returns a copy of the current sensor states.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	req := make(chan Snapshot, 1)
	select {
	case t.snapshots <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run consumes samples and serves snapshots until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	index := make(map[byte]int, len(t.addrs))
	for i, addr := range t.addrs {
		index[addr] = i
	}
	state := make([]SensorState, len(t.addrs))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s := <-t.samples:
			i, ok := index[s.Addr]
			if !ok {
				monitoring.Debugf("tracker: sample from unconfigured imu 0x%02X", s.Addr)
				continue
			}
			yaw, ok := t.normalizer.Normalize(s.Addr, s.Roll(), s.Pitch(), s.Yaw())
			if !ok {
				// All-zero frame, sensor still settling.
				continue
			}
			state[i] = SensorState{
				Euler:      EulerDeg{Roll: s.Roll(), Pitch: s.Pitch(), Yaw: yaw},
				LastUpdate: s.Time,
				Valid:      true,
			}

		case req := <-t.snapshots:
			req <- Snapshot{
				At:      t.clock.Now(),
				Sensors: append([]SensorState(nil), state...),
			}
		}
	}
}
