package teleop

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the control message published to the robot side. Position is the
// mapped end-effector target in meters, orientation the wrist euler angles
// in radians, gripper in [0,1] and t the unix timestamp in seconds.
type Frame struct {
	Position    [3]float64 `json:"position"`
	Orientation [3]float64 `json:"orientation"`
	Gripper     float64    `json:"gripper"`
	T           float64    `json:"t"`
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Time returns the frame timestamp as a time.Time.
func (f Frame) Time() time.Time {
	sec := int64(f.T)
	nsec := int64((f.T - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// UnixSeconds converts a time.Time into the wire timestamp format.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// ResetPayload is the out-of-band marker telling consumers to re-home.
func ResetPayload() []byte {
	return []byte(`{"reset":true}`)
}

type wireMessage struct {
	Reset       bool        `json:"reset"`
	Position    *[3]float64 `json:"position"`
	Orientation *[3]float64 `json:"orientation"`
	Gripper     *float64    `json:"gripper"`
	T           *float64    `json:"t"`
}

// ParseMessage decodes a payload from the teleop feed. reset reports the
// re-home marker; otherwise the payload must carry a full frame.
func ParseMessage(payload []byte) (frame Frame, reset bool, err error) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Frame{}, false, fmt.Errorf("decode teleop message: %w", err)
	}
	if msg.Reset {
		return Frame{}, true, nil
	}
	if msg.Position == nil || msg.Orientation == nil {
		return Frame{}, false, fmt.Errorf("teleop message missing position or orientation")
	}
	frame = Frame{Position: *msg.Position, Orientation: *msg.Orientation}
	if msg.Gripper != nil {
		frame.Gripper = *msg.Gripper
	}
	if msg.T != nil {
		frame.T = *msg.T
	}
	return frame, false, nil
}

// EulerDeg is an orientation in degrees as shown on the debug feed.
type EulerDeg struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// DebugPosition carries the end-effector position before and after the
// workspace mapping.
type DebugPosition struct {
	Raw    [3]float64 `json:"raw"`
	Mapped [3]float64 `json:"mapped"`
}

// DebugStats summarizes the publisher since start.
type DebugStats struct {
	PublishCount int64   `json:"publish_count"`
	PublishRate  float64 `json:"publish_rate"`
	Uptime       float64 `json:"uptime"`
}

// DebugConfig echoes the kinematic configuration so the UI can label plots.
type DebugConfig struct {
	L1      float64 `json:"L1"`
	L2      float64 `json:"L2"`
	YawMode string  `json:"yaw_mode"`
}

// DebugFeed is the 20 Hz status message for the debug server. The two-sensor
// rig omits imu3.
type DebugFeed struct {
	Timestamp    float64         `json:"timestamp"`
	IMU1         *EulerDeg       `json:"imu1,omitempty"`
	IMU2         *EulerDeg       `json:"imu2,omitempty"`
	IMU3         *EulerDeg       `json:"imu3,omitempty"`
	Position     DebugPosition   `json:"position"`
	Gripper      float64         `json:"gripper"`
	OnlineStatus map[string]bool `json:"online_status"`
	Stats        DebugStats      `json:"stats"`
	Config       DebugConfig     `json:"config"`
}

// Encode serializes the feed message.
func (d DebugFeed) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDebugFeed decodes a debug feed payload.
func ParseDebugFeed(payload []byte) (DebugFeed, error) {
	var feed DebugFeed
	if err := json.Unmarshal(payload, &feed); err != nil {
		return DebugFeed{}, fmt.Errorf("decode debug feed: %w", err)
	}
	return feed, nil
}

// IMU returns the feed euler block for sensor index i (0-based), or nil.
func (d DebugFeed) IMU(i int) *EulerDeg {
	switch i {
	case 0:
		return d.IMU1
	case 1:
		return d.IMU2
	case 2:
		return d.IMU3
	}
	return nil
}

// SetIMU stores the euler block for sensor index i (0-based). Indexes beyond
// the wire format's three slots are ignored.
func (d *DebugFeed) SetIMU(i int, e EulerDeg) {
	switch i {
	case 0:
		d.IMU1 = &e
	case 1:
		d.IMU2 = &e
	case 2:
		d.IMU3 = &e
	}
}
