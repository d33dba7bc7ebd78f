// Package teleop is the publishing heart of the rig: it tracks the latest
// orientation of each arm sensor, turns them into end-effector frames at a
// fixed rate, and feeds both the robot control channel and the debug UI.
package teleop

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
	"github.com/armlink-data/teleop.rig/internal/units"
)

// Default publish cadence. Control frames go out at 5 Hz, the debug feed at
// 20 Hz.
const (
	DefaultPublishInterval = 200 * time.Millisecond
	DefaultDebugInterval   = 50 * time.Millisecond
)

// rateWindow is how many publishes the rolling rate is averaged over.
const rateWindow = 25

// skipLogEvery spaces out the wait-for-sensors log line while publishing is
// gated.
const skipLogEvery = 25

// Publisher sends one encoded payload downstream.
type Publisher interface {
	Publish(payload []byte) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(payload []byte) error

// Publish calls f.
func (f PublisherFunc) Publish(payload []byte) error { return f(payload) }

// Stats is a snapshot of the publisher counters.
type Stats struct {
	PublishCount int64         `json:"publish_count"`
	SkipCount    int64         `json:"skip_count"`
	PublishRate  float64       `json:"publish_rate"`
	Uptime       time.Duration `json:"uptime"`
}

// Engine drives the publish loops. It reads sensor snapshots from the
// tracker, runs the kinematics and workspace mapping, and publishes control
// frames and the debug feed on its two tickers.
type Engine struct {
	tracker *Tracker
	gripper *Gripper
	arm     pose.Arm
	ws      pose.Workspace
	frames  Publisher
	debug   Publisher

	// PublishInterval and DebugInterval set the two loop cadences.
	PublishInterval time.Duration
	DebugInterval   time.Duration

	// OnlineWindow is the sample recency required for a sensor to count as
	// online.
	OnlineWindow time.Duration

	// OnlineOnly skips publish ticks while any sensor is offline.
	OnlineOnly bool

	clock timeutil.Clock

	mu           sync.Mutex
	startTime    time.Time
	publishCount int64
	skipCount    int64
	publishRate  float64
	rateMark     time.Time
	rateCount    int64
	lastRaw      [3]float64
	lastMapped   [3]float64
}

// NewEngine creates an engine over the tracker. frames receives the control
// frames; debug receives the feed and may be nil to disable it.
func NewEngine(tracker *Tracker, gripper *Gripper, arm pose.Arm, ws pose.Workspace, frames, debug Publisher) *Engine {
	return &Engine{
		tracker:         tracker,
		gripper:         gripper,
		arm:             arm,
		ws:              ws,
		frames:          frames,
		debug:           debug,
		PublishInterval: DefaultPublishInterval,
		DebugInterval:   DefaultDebugInterval,
		OnlineWindow:    DefaultOnlineWindow,
		clock:           timeutil.RealClock{},
	}
}

// SetClock replaces the engine clock. Tests use this with a mock clock; it
// must be called before Run.
func (e *Engine) SetClock(clock timeutil.Clock) {
	e.clock = clock
}

// Gripper returns the gripper the engine publishes.
func (e *Engine) Gripper() *Gripper {
	return e.gripper
}

// Run publishes until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	now := e.clock.Now()
	e.mu.Lock()
	e.startTime = now
	e.rateMark = now
	e.mu.Unlock()

	pub := e.clock.NewTicker(e.PublishInterval)
	defer pub.Stop()
	dbg := e.clock.NewTicker(e.DebugInterval)
	defer dbg.Stop()

	monitoring.Logf("teleop: publishing every %v, debug feed every %v", e.PublishInterval, e.DebugInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pub.C():
			e.publishTick(ctx)
		case <-dbg.C():
			e.debugTick(ctx)
		}
	}
}

// publishTick builds and sends one control frame, unless the publishing gate
// holds it back.
func (e *Engine) publishTick(ctx context.Context) {
	snap, err := e.tracker.Snapshot(ctx)
	if err != nil {
		return
	}

	if !snap.AllSampled() {
		e.recordSkip("waiting for first sample from every sensor")
		return
	}
	if !e.tracker.Normalizer().Ready(e.tracker.Addrs()) {
		e.recordSkip("waiting for yaw zeroing")
		return
	}
	if e.OnlineOnly && !snap.AllOnline(e.OnlineWindow) {
		e.recordSkip("waiting for sensors to come online")
		return
	}
	if len(snap.Sensors) < 2 {
		e.recordSkip("fewer than two sensors configured")
		return
	}

	raw, mapped := e.solve(snap)
	wrist := snap.Sensors[len(snap.Sensors)-1].Euler
	frame := Frame{
		Position: mapped,
		Orientation: [3]float64{
			units.DegToRad(wrist.Roll),
			units.DegToRad(wrist.Pitch),
			units.DegToRad(wrist.Yaw),
		},
		Gripper: e.gripper.Value(),
		T:       UnixSeconds(snap.At),
	}

	payload, err := frame.Encode()
	if err != nil {
		monitoring.Logf("teleop: encode frame: %v", err)
		return
	}
	if err := e.frames.Publish(payload); err != nil {
		monitoring.Logf("teleop: publish frame: %v", err)
		return
	}
	e.recordPublish(snap.At, raw, mapped)
}

// solve runs kinematics and the workspace mapping on the snapshot. raw is
// clamped to the source box the way the debug UI expects.
func (e *Engine) solve(snap Snapshot) (raw, mapped [3]float64) {
	link1 := eulerRad(snap.Sensors[0].Euler)
	link2 := eulerRad(snap.Sensors[1].Euler)
	end := e.arm.EndEffector(link1, link2)
	clamped := e.ws.Source.Clamp(end)
	target := e.ws.Map(end)
	return [3]float64{clamped.X, clamped.Y, clamped.Z},
		[3]float64{target.X, target.Y, target.Z}
}

func eulerRad(e EulerDeg) pose.Euler {
	return pose.Euler{
		Roll:  units.DegToRad(e.Roll),
		Pitch: units.DegToRad(e.Pitch),
		Yaw:   units.DegToRad(e.Yaw),
	}
}

// debugTick sends one feed message with whatever state is current.
func (e *Engine) debugTick(ctx context.Context) {
	if e.debug == nil {
		return
	}
	snap, err := e.tracker.Snapshot(ctx)
	if err != nil {
		return
	}

	e.mu.Lock()
	raw, mapped := e.lastRaw, e.lastMapped
	stats := e.statsLocked(snap.At)
	e.mu.Unlock()

	feed := DebugFeed{
		Timestamp:    UnixSeconds(snap.At),
		Position:     DebugPosition{Raw: raw, Mapped: mapped},
		Gripper:      e.gripper.Value(),
		OnlineStatus: make(map[string]bool, len(snap.Sensors)),
		Stats: DebugStats{
			PublishCount: stats.PublishCount,
			PublishRate:  stats.PublishRate,
			Uptime:       stats.Uptime.Seconds(),
		},
		Config: DebugConfig{
			L1:      e.arm.L1,
			L2:      e.arm.L2,
			YawMode: string(e.tracker.Normalizer().Mode()),
		},
	}
	for i, sensor := range snap.Sensors {
		feed.SetIMU(i, sensor.Euler)
		feed.OnlineStatus[imuKey(i)] = sensor.Online(snap.At, e.OnlineWindow)
	}

	payload, err := feed.Encode()
	if err != nil {
		monitoring.Logf("teleop: encode debug feed: %v", err)
		return
	}
	if err := e.debug.Publish(payload); err != nil {
		monitoring.Debugf("teleop: publish debug feed: %v", err)
	}
}

func imuKey(i int) string {
	return "imu" + string(rune('1'+i))
}

// Reset sends the re-home marker on the control channel.
func (e *Engine) Reset() error {
	monitoring.Logf("teleop: sending reset downstream")
	return e.frames.Publish(ResetPayload())
}

// Stats returns the current publisher counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked(e.clock.Now())
}

func (e *Engine) statsLocked(now time.Time) Stats {
	var uptime time.Duration
	if !e.startTime.IsZero() {
		uptime = now.Sub(e.startTime)
	}
	return Stats{
		PublishCount: e.publishCount,
		SkipCount:    e.skipCount,
		PublishRate:  e.publishRate,
		Uptime:       uptime,
	}
}

func (e *Engine) recordPublish(now time.Time, raw, mapped [3]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishCount++
	e.rateCount++
	e.lastRaw = raw
	e.lastMapped = mapped
	if e.rateCount >= rateWindow {
		if elapsed := now.Sub(e.rateMark).Seconds(); elapsed > 0 {
			e.publishRate = float64(e.rateCount) / elapsed
		}
		e.rateMark = now
		e.rateCount = 0
	}
}

func (e *Engine) recordSkip(reason string) {
	e.mu.Lock()
	e.skipCount++
	count := e.skipCount
	e.mu.Unlock()
	if count%skipLogEvery == 1 {
		monitoring.Logf("teleop: %s (%d ticks skipped)", reason, count)
	}
}

// AttachAdminRoutes mounts the runtime control endpoints under /debug/ on
// mux: gripper get/set, downstream reset, yaw re-zeroing, and the stats
// counters.
func (e *Engine) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("gripper", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			switch action := r.FormValue("action"); action {
			case "open":
				e.gripper.Open()
			case "close":
				e.gripper.Close()
			case "set":
				v, err := strconv.ParseFloat(r.FormValue("value"), 64)
				if err != nil {
					http.Error(w, "invalid value: "+err.Error(), http.StatusBadRequest)
					return
				}
				e.gripper.Set(v)
			default:
				http.Error(w, "unknown action "+action, http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]float64{"gripper": e.gripper.Value()})
	})

	debug.HandleSilentFunc("teleop-reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := e.Reset(); err != nil {
			http.Error(w, "reset failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		w.Write([]byte("reset sent\n"))
	})

	debug.HandleSilentFunc("yaw-zero", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		e.tracker.Normalizer().Reset()
		w.Write([]byte("yaw offsets cleared\n"))
	})

	debug.HandleFunc("teleop-stats", "teleop publisher counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(e.Stats())
	})
}
