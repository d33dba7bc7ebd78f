// Package sim generates synthetic sensor and teleop data so the full
// pipeline runs on a desk with no hardware attached: a sinusoidal WIT
// sample source for the daemon's -sim mode, and a teleop frame generator
// for exercising the simulator and debug server.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

// DefaultSampleInterval matches the bench sensor simulator's 10 Hz.
const DefaultSampleInterval = 100 * time.Millisecond

// SensorSource emits fake WIT samples for a set of addresses. It implements
// the same callback contract as the hardware poller, so the tracker cannot
// tell them apart.
type SensorSource struct {
	Addrs    []byte
	Interval time.Duration

	// Period is the duration of one full oscillation.
	Period time.Duration

	onSample func(witimu.Sample)
	clock    timeutil.Clock
	start    time.Time
}

// NewSensorSource creates a source for addrs delivering to onSample.
func NewSensorSource(addrs []byte, onSample func(witimu.Sample)) *SensorSource {
	return &SensorSource{
		Addrs:    addrs,
		Interval: DefaultSampleInterval,
		Period:   20 * time.Second,
		onSample: onSample,
		clock:    timeutil.RealClock{},
	}
}

// SetClock replaces the source clock for tests. Call before Run.
func (s *SensorSource) SetClock(clock timeutil.Clock) {
	s.clock = clock
}

// Run emits samples until ctx is cancelled.
func (s *SensorSource) Run(ctx context.Context) error {
	s.start = s.clock.Now()
	ticker := s.clock.NewTicker(s.Interval)
	defer ticker.Stop()

	monitoring.Logf("sim: emitting synthetic samples for %d sensors every %v", len(s.Addrs), s.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			now := s.clock.Now()
			for i, addr := range s.Addrs {
				s.onSample(s.sample(addr, i, now))
			}
		}
	}
}

// sample builds one synthetic measurement. Each sensor runs the same
// waveform phase-shifted so the arm visibly articulates.
func (s *SensorSource) sample(addr byte, index int, now time.Time) witimu.Sample {
	phase := 2 * math.Pi * (now.Sub(s.start).Seconds()/s.Period.Seconds() + float64(index)/3)
	return witimu.Sample{
		Addr: addr,
		Time: now,
		// Gravity on Z with a small wobble; the X/Y components swing with
		// the attitude.
		Acc:  [3]float64{0.2 * math.Sin(phase), 0.2 * math.Cos(phase), 1 + 0.05*math.Sin(2*phase)},
		Gyro: [3]float64{30 * math.Cos(phase), 30 * math.Sin(phase), 15 * math.Sin(phase / 2)},
		Mag:  [3]float64{300 * math.Cos(phase), 300 * math.Sin(phase), 500},
		Angle: [3]float64{
			15 * math.Sin(phase),
			20 * math.Sin(phase+math.Pi/3),
			45 * math.Sin(phase/2),
		},
	}
}
