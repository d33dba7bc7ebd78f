package teleop

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	frame := Frame{
		Position:    [3]float64{0.31, -0.05, 0.22},
		Orientation: [3]float64{0.1, -0.2, 1.5},
		Gripper:     0.42,
		T:           1700000000.25,
	}

	payload, err := frame.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, reset, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if reset {
		t.Fatal("frame parsed as reset")
	}
	if diff := cmp.Diff(frame, got); diff != "" {
		t.Errorf("frame round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestFrameWireFormat pins the JSON field names consumers depend on.
func TestFrameWireFormat(t *testing.T) {
	payload, err := Frame{T: 1}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"position", "orientation", "gripper", "t"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded frame missing %q: %s", key, payload)
		}
	}
}

func TestParseMessageReset(t *testing.T) {
	_, reset, err := ParseMessage(ResetPayload())
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if !reset {
		t.Error("reset payload not detected")
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "hello"},
		{"missing position", `{"orientation":[0,0,0],"gripper":0,"t":1}`},
		{"missing orientation", `{"position":[0,0,0],"gripper":0,"t":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseMessage([]byte(tt.payload)); err == nil {
				t.Errorf("ParseMessage(%q) succeeded, want error", tt.payload)
			}
		})
	}
}

func TestFrameTime(t *testing.T) {
	at := time.Unix(1700000123, 250*int64(time.Millisecond))
	frame := Frame{T: UnixSeconds(at)}
	if got := frame.Time(); math.Abs(got.Sub(at).Seconds()) > 1e-6 {
		t.Errorf("Time() = %v, want %v", got, at)
	}
}

// TestDebugFeedOmitsMissingSensors confirms the two-sensor rig leaves imu3
// off the wire entirely.
func TestDebugFeedOmitsMissingSensors(t *testing.T) {
	var feed DebugFeed
	feed.SetIMU(0, EulerDeg{Roll: 1})
	feed.SetIMU(1, EulerDeg{Pitch: 2})

	payload, err := feed.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := fields["imu3"]; ok {
		t.Errorf("imu3 present in two-sensor feed: %s", payload)
	}

	got, err := ParseDebugFeed(payload)
	if err != nil {
		t.Fatalf("ParseDebugFeed: %v", err)
	}
	if got.IMU(0) == nil || got.IMU(0).Roll != 1 {
		t.Errorf("imu1 = %+v, want roll 1", got.IMU(0))
	}
	if got.IMU(2) != nil {
		t.Errorf("imu3 = %+v, want nil", got.IMU(2))
	}
}
