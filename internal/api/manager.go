// Package api is the rig's web debug surface: it consumes the daemon's
// 20 Hz feed, keeps trajectory and noise history, and serves the live
// status page, the JSON API, and the WebSocket stream that the operator UI
// hangs off.
package api

import (
	"context"
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

const (
	// trajectoryCap bounds the retained path history.
	trajectoryCap = 1000

	// noiseCap bounds the per-sensor euler history the noise stats run
	// over.
	noiseCap = 100

	// noiseMinSamples is how much history a sensor needs before its noise
	// stats are reported.
	noiseMinSamples = 10

	// DefaultTrajectoryTail is how many points the enhanced payload and
	// /api/trajectory carry by default.
	DefaultTrajectoryTail = 50

	// rateWindow is how many messages the current-rate estimate spans.
	rateWindow = 20
)

// TrajPoint is one mapped end-effector position with its feed timestamp.
type TrajPoint struct {
	T float64    `json:"t"`
	P [3]float64 `json:"p"`
}

// AxisStats summarizes one euler axis over the noise window.
type AxisStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// NoiseStats is the per-sensor orientation noise summary.
type NoiseStats struct {
	Samples int       `json:"samples"`
	Roll    AxisStats `json:"roll"`
	Pitch   AxisStats `json:"pitch"`
	Yaw     AxisStats `json:"yaw"`
}

// ServerStats are the server-side counters added to the enhanced payload.
type ServerStats struct {
	TotalMessages int64      `json:"total_messages"`
	CurrentRate   float64    `json:"current_rate"`
	Uptime        float64    `json:"uptime"`
	Velocity      [3]float64 `json:"velocity"`
	Speed         float64    `json:"speed"`
}

// Enhanced is the payload pushed to WebSocket clients: the upstream debug
// feed plus server-side history and stats.
type Enhanced struct {
	teleop.DebugFeed
	Trajectory []TrajPoint           `json:"trajectory"`
	Noise      map[string]NoiseStats `json:"noise,omitempty"`
	Server     ServerStats           `json:"server_stats"`
}

// Export is the reply to the export_data WebSocket command: the full
// in-memory state at the time of the request.
type Export struct {
	Trajectory []TrajPoint           `json:"trajectory"`
	Noise      map[string]NoiseStats `json:"noise,omitempty"`
	Server     ServerStats           `json:"server_stats"`
}

// DataManager owns the feed-derived state. A single goroutine (Run)
// consumes payloads and answers requests, mirroring the daemon's tracker.
type DataManager struct {
	clock timeutil.Clock

	payloads chan []byte
	requests chan func(*managerState)

	// OnEnhanced, when set, receives each encoded enhanced payload as it
	// is built. The WebSocket hub broadcasts from here.
	OnEnhanced func(payload []byte)
}

type managerState struct {
	trajectory []TrajPoint
	noise      map[string]*noiseWindow
	latest     *Enhanced

	totalMessages int64
	startTime     float64 // unix seconds of the first message
	rateTimes     []float64
}

type noiseWindow struct {
	frames [][3]float64
}

// NewDataManager creates a manager. Call Run to start it.
func NewDataManager() *DataManager {
	return &DataManager{
		clock:    timeutil.RealClock{},
		payloads: make(chan []byte, 16),
		requests: make(chan func(*managerState)),
	}
}

// SetClock replaces the manager clock for tests. Call before Run.
func (m *DataManager) SetClock(clock timeutil.Clock) {
	m.clock = clock
}

// Offer hands a raw feed payload to the manager without blocking; when the
// state goroutine lags, stale payloads are dropped.
func (m *DataManager) Offer(payload []byte) {
	select {
	case m.payloads <- payload:
	default:
		monitoring.Debugf("api: dropped feed payload")
	}
}

// Run consumes payloads and serves requests until ctx is cancelled.
func (m *DataManager) Run(ctx context.Context) error {
	state := &managerState{noise: make(map[string]*noiseWindow)}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-m.payloads:
			m.ingest(state, payload)
		case req := <-m.requests:
			req(state)
		}
	}
}

func (m *DataManager) ingest(state *managerState, payload []byte) {
	feed, err := teleop.ParseDebugFeed(payload)
	if err != nil {
		monitoring.Debugf("api: bad feed payload: %v", err)
		return
	}

	now := teleop.UnixSeconds(m.clock.Now())
	state.totalMessages++
	if state.startTime == 0 {
		state.startTime = now
	}
	state.rateTimes = append(state.rateTimes, now)
	if len(state.rateTimes) > rateWindow {
		state.rateTimes = state.rateTimes[len(state.rateTimes)-rateWindow:]
	}

	state.trajectory = append(state.trajectory, TrajPoint{T: feed.Timestamp, P: feed.Position.Mapped})
	if len(state.trajectory) > trajectoryCap {
		state.trajectory = state.trajectory[len(state.trajectory)-trajectoryCap:]
	}

	for i := 0; i < 3; i++ {
		euler := feed.IMU(i)
		if euler == nil {
			continue
		}
		key := imuKey(i)
		window := state.noise[key]
		if window == nil {
			window = &noiseWindow{}
			state.noise[key] = window
		}
		window.frames = append(window.frames, [3]float64{euler.Roll, euler.Pitch, euler.Yaw})
		if len(window.frames) > noiseCap {
			window.frames = window.frames[len(window.frames)-noiseCap:]
		}
	}

	enhanced := &Enhanced{
		DebugFeed:  feed,
		Trajectory: tail(state.trajectory, DefaultTrajectoryTail),
		Noise:      noiseStats(state.noise),
		Server:     m.serverStats(state, now),
	}
	state.latest = enhanced

	if m.OnEnhanced != nil {
		if encoded, err := json.Marshal(enhanced); err == nil {
			m.OnEnhanced(encoded)
		}
	}
}

func (m *DataManager) serverStats(state *managerState, now float64) ServerStats {
	stats := ServerStats{TotalMessages: state.totalMessages}
	if state.startTime > 0 {
		stats.Uptime = now - state.startTime
	}
	if n := len(state.rateTimes); n >= 2 {
		if span := state.rateTimes[n-1] - state.rateTimes[0]; span > 0 {
			stats.CurrentRate = float64(n-1) / span
		}
	}
	if n := len(state.trajectory); n >= 2 {
		a, b := state.trajectory[n-2], state.trajectory[n-1]
		if dt := b.T - a.T; dt > 0 {
			for i := 0; i < 3; i++ {
				stats.Velocity[i] = (b.P[i] - a.P[i]) / dt
			}
			stats.Speed = math.Sqrt(stats.Velocity[0]*stats.Velocity[0] +
				stats.Velocity[1]*stats.Velocity[1] +
				stats.Velocity[2]*stats.Velocity[2])
		}
	}
	return stats
}

// request runs fn on the state goroutine and waits for it.
func (m *DataManager) request(ctx context.Context, fn func(*managerState)) error {
	done := make(chan struct{})
	wrapped := func(s *managerState) {
		fn(s)
		close(done)
	}
	select {
	case m.requests <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns the newest enhanced payload; ok is false before the first
// feed message.
func (m *DataManager) Latest(ctx context.Context) (enhanced Enhanced, ok bool, err error) {
	err = m.request(ctx, func(s *managerState) {
		if s.latest != nil {
			enhanced = *s.latest
			ok = true
		}
	})
	return enhanced, ok, err
}

// Trajectory returns the last n trajectory points.
func (m *DataManager) Trajectory(ctx context.Context, n int) (points []TrajPoint, err error) {
	if n <= 0 {
		n = DefaultTrajectoryTail
	}
	err = m.request(ctx, func(s *managerState) {
		points = tail(s.trajectory, n)
	})
	return points, err
}

// Stats returns the server counters and the current noise summary.
func (m *DataManager) Stats(ctx context.Context) (server ServerStats, noise map[string]NoiseStats, err error) {
	err = m.request(ctx, func(s *managerState) {
		server = m.serverStats(s, teleop.UnixSeconds(m.clock.Now()))
		noise = noiseStats(s.noise)
	})
	return server, noise, err
}

// ResetTrajectory clears the trajectory and noise windows.
func (m *DataManager) ResetTrajectory(ctx context.Context) error {
	return m.request(ctx, func(s *managerState) {
		s.trajectory = nil
		s.noise = make(map[string]*noiseWindow)
		monitoring.Logf("api: trajectory reset")
	})
}

// ExportData snapshots the full in-memory state.
func (m *DataManager) ExportData(ctx context.Context) (export Export, err error) {
	err = m.request(ctx, func(s *managerState) {
		export = Export{
			Trajectory: append([]TrajPoint(nil), s.trajectory...),
			Noise:      noiseStats(s.noise),
			Server:     m.serverStats(s, teleop.UnixSeconds(m.clock.Now())),
		}
	})
	return export, err
}

// ChartsData returns the raw history the chart endpoints render: the full
// trajectory and the per-sensor euler windows.
func (m *DataManager) ChartsData(ctx context.Context) (points []TrajPoint, euler map[string][][3]float64, err error) {
	err = m.request(ctx, func(s *managerState) {
		points = append([]TrajPoint(nil), s.trajectory...)
		euler = make(map[string][][3]float64, len(s.noise))
		for key, window := range s.noise {
			euler[key] = append([][3]float64(nil), window.frames...)
		}
	})
	return points, euler, err
}

func tail(points []TrajPoint, n int) []TrajPoint {
	if len(points) > n {
		points = points[len(points)-n:]
	}
	return append([]TrajPoint(nil), points...)
}

func noiseStats(windows map[string]*noiseWindow) map[string]NoiseStats {
	stats := make(map[string]NoiseStats, len(windows))
	for key, window := range windows {
		if len(window.frames) < noiseMinSamples {
			continue
		}
		stats[key] = NoiseStats{
			Samples: len(window.frames),
			Roll:    axisStats(window.frames, 0),
			Pitch:   axisStats(window.frames, 1),
			Yaw:     axisStats(window.frames, 2),
		}
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

func axisStats(frames [][3]float64, axis int) AxisStats {
	values := make([]float64, len(frames))
	for i, f := range frames {
		values[i] = f[axis]
	}
	mean := stat.Mean(values, nil)
	a := AxisStats{
		Mean: mean,
		Std:  stat.StdDev(values, nil),
		Min:  values[0],
		Max:  values[0],
	}
	for _, v := range values {
		a.Min = math.Min(a.Min, v)
		a.Max = math.Max(a.Max, v)
	}
	return a
}

func imuKey(i int) string {
	return "imu" + string(rune('1'+i))
}
