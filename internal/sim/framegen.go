package sim

import (
	"context"
	"math"
	"time"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// FrameSource publishes synthetic teleop frames: a circular path in the
// target workspace's XY plane with the gripper sweeping open and closed.
// It feeds the simulator and debug server without a rig attached.
type FrameSource struct {
	Workspace pose.Workspace
	Interval  time.Duration

	// Period is the time for one lap of the circle.
	Period time.Duration

	frames teleop.Publisher
	debug  teleop.Publisher
	clock  timeutil.Clock
	start  time.Time
	count  int64
}

// NewFrameSource creates a source publishing control frames to frames and,
// when debug is non-nil, a matching debug feed.
func NewFrameSource(ws pose.Workspace, frames, debug teleop.Publisher) *FrameSource {
	return &FrameSource{
		Workspace: ws,
		Interval:  teleop.DefaultPublishInterval,
		Period:    12 * time.Second,
		frames:    frames,
		debug:     debug,
		clock:     timeutil.RealClock{},
	}
}

// SetClock replaces the source clock for tests. Call before Run.
func (s *FrameSource) SetClock(clock timeutil.Clock) {
	s.clock = clock
}

// Run publishes until ctx is cancelled.
func (s *FrameSource) Run(ctx context.Context) error {
	s.start = s.clock.Now()
	ticker := s.clock.NewTicker(s.Interval)
	defer ticker.Stop()

	monitoring.Logf("sim: publishing synthetic teleop frames every %v", s.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := s.tick(); err != nil {
				monitoring.Logf("sim: publish: %v", err)
			}
		}
	}
}

func (s *FrameSource) tick() error {
	now := s.clock.Now()
	frame := s.Frame(now)
	payload, err := frame.Encode()
	if err != nil {
		return err
	}
	if err := s.frames.Publish(payload); err != nil {
		return err
	}
	s.count++

	if s.debug == nil {
		return nil
	}
	feed := s.feed(frame, now)
	payload, err = feed.Encode()
	if err != nil {
		return err
	}
	return s.debug.Publish(payload)
}

// Frame returns the synthetic control frame for time now: a circle centered
// in the target box at half its spans, wrist level, gripper sweeping.
func (s *FrameSource) Frame(now time.Time) teleop.Frame {
	t := now.Sub(s.start).Seconds()
	angle := 2 * math.Pi * t / s.Period.Seconds()

	target := s.Workspace.Target
	cx := (target.X.Min + target.X.Max) / 2
	cy := (target.Y.Min + target.Y.Max) / 2
	cz := (target.Z.Min + target.Z.Max) / 2
	rx := (target.X.Max - target.X.Min) / 3
	ry := (target.Y.Max - target.Y.Min) / 3

	return teleop.Frame{
		Position: [3]float64{
			cx + rx*math.Cos(angle),
			cy + ry*math.Sin(angle),
			cz,
		},
		Orientation: [3]float64{0, 0, angle / 4},
		Gripper:     0.5 + 0.5*math.Sin(angle/2),
		T:           teleop.UnixSeconds(now),
	}
}

func (s *FrameSource) feed(frame teleop.Frame, now time.Time) teleop.DebugFeed {
	feed := teleop.DebugFeed{
		Timestamp: teleop.UnixSeconds(now),
		Position: teleop.DebugPosition{
			Raw:    frame.Position,
			Mapped: frame.Position,
		},
		Gripper: frame.Gripper,
		OnlineStatus: map[string]bool{
			"imu1": true, "imu2": true, "imu3": true,
		},
		Stats: teleop.DebugStats{
			PublishCount: s.count,
			PublishRate:  1 / s.Interval.Seconds(),
			Uptime:       now.Sub(s.start).Seconds(),
		},
		Config: teleop.DebugConfig{
			L1:      pose.DefaultL1,
			L2:      pose.DefaultL2,
			YawMode: string(pose.YawModeNormal),
		},
	}
	for i := 0; i < 3; i++ {
		feed.SetIMU(i, teleop.EulerDeg{
			Roll:  10 * math.Sin(float64(i)+teleop.UnixSeconds(now)/5),
			Pitch: 15 * math.Cos(float64(i)+teleop.UnixSeconds(now)/5),
			Yaw:   frame.Orientation[2] * 180 / math.Pi,
		})
	}
	return feed
}
