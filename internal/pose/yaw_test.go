package pose

import (
	"math"
	"testing"
)

func TestParseYawMode(t *testing.T) {
	tests := []struct {
		in      string
		want    YawMode
		wantErr bool
	}{
		{"NORMAL", YawModeNormal, false},
		{"normal", YawModeNormal, false},
		{" Auto ", YawModeAuto, false},
		{"simple", YawModeSimple, false},
		{"OFF", YawModeOff, false},
		{"", YawModeOff, false},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		got, err := ParseYawMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseYawMode(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseYawMode(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseYawMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFrameValid(t *testing.T) {
	if FrameValid(0, 0, 0) {
		t.Error("all-zero frame reported valid")
	}
	if FrameValid(0.005, -0.002, 0.009) {
		t.Error("sub-epsilon frame reported valid")
	}
	if !FrameValid(0, 0, 0.02) {
		t.Error("frame with real yaw reported invalid")
	}
	if !FrameValid(5, 0, 0) {
		t.Error("frame with real roll reported invalid")
	}
}

// TestYawNormalizer_Normal verifies first-frame zeroing and wrap-around.
func TestYawNormalizer_Normal(t *testing.T) {
	n := NewYawNormalizer(YawModeNormal)

	got, ok := n.Normalize(0x50, 1, 1, 170)
	if !ok || math.Abs(got) > 1e-9 {
		t.Errorf("first valid frame = (%v, %v), want (0, true)", got, ok)
	}

	// Offset stays at 170; a swing across the wrap point stays continuous.
	got, _ = n.Normalize(0x50, 1, 1, -170)
	if math.Abs(got-20) > 1e-9 {
		t.Errorf("wrapped frame = %v, want 20", got)
	}

	got, _ = n.Normalize(0x50, 1, 1, 175)
	if math.Abs(got-5) > 1e-9 {
		t.Errorf("later frame = %v, want 5", got)
	}
}

// TestYawNormalizer_InvalidFramesRecordNothing verifies zeros are ignored
// until the sensor starts reporting.
func TestYawNormalizer_InvalidFramesRecordNothing(t *testing.T) {
	n := NewYawNormalizer(YawModeNormal)

	if _, ok := n.Normalize(0x50, 0, 0, 0); ok {
		t.Error("all-zero frame accepted")
	}
	if n.HasOffset(0x50) {
		t.Error("offset recorded from an invalid frame")
	}

	got, ok := n.Normalize(0x50, 1, 1, 90)
	if !ok || math.Abs(got) > 1e-9 {
		t.Errorf("first valid frame = (%v, %v), want (0, true)", got, ok)
	}
}

func TestYawNormalizer_Auto(t *testing.T) {
	tests := []struct {
		name     string
		firstYaw float64
		want     float64
	}{
		{"facing forward records raw offset", 50, 0},
		{"beyond +threshold assumes half turn", 150, -30},
		{"beyond -threshold assumes half turn", -150, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewYawNormalizer(YawModeAuto)
			got, ok := n.Normalize(0x50, 1, 1, tt.firstYaw)
			if !ok {
				t.Fatal("valid frame rejected")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("first frame = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYawNormalizer_Simple(t *testing.T) {
	n := NewYawNormalizer(YawModeSimple)

	tests := []struct {
		yaw  float64
		want float64
	}{
		{150, -30},
		{-150, 30},
		{50, 50},
		{-99, -99},
	}

	for _, tt := range tests {
		got, ok := n.Normalize(0x50, 1, 1, tt.yaw)
		if !ok {
			t.Fatalf("valid frame rejected for yaw %v", tt.yaw)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Normalize(yaw=%v) = %v, want %v", tt.yaw, got, tt.want)
		}
	}

	if !n.HasOffset(0x99) {
		t.Error("stateless mode should always be ready")
	}
}

func TestYawNormalizer_Off(t *testing.T) {
	n := NewYawNormalizer(YawModeOff)

	got, _ := n.Normalize(0x50, 1, 1, -90)
	if math.Abs(got-90) > 1e-9 {
		t.Errorf("Normalize(yaw=-90) = %v, want 90", got)
	}

	got, _ = n.Normalize(0x50, 1, 1, 90)
	if math.Abs(got+90) > 1e-9 {
		t.Errorf("Normalize(yaw=90) = %v, want -90", got)
	}

	// Zero yaw passes through when the frame is otherwise valid.
	got, ok := n.Normalize(0x50, 5, 0, 0)
	if !ok || got != 0 {
		t.Errorf("Normalize(yaw=0) = (%v, %v), want (0, true)", got, ok)
	}
}

// TestYawNormalizer_Ready verifies the publish gate semantics.
func TestYawNormalizer_Ready(t *testing.T) {
	addrs := []byte{0x50, 0x51}
	n := NewYawNormalizer(YawModeNormal)

	if n.Ready(addrs) {
		t.Error("Ready before any offsets recorded")
	}

	n.Normalize(0x50, 1, 1, 10)
	if n.Ready(addrs) {
		t.Error("Ready with one sensor still unzeroed")
	}

	n.Normalize(0x51, 1, 1, 20)
	if !n.Ready(addrs) {
		t.Error("not Ready after all sensors zeroed")
	}

	n.Reset()
	if n.Ready(addrs) {
		t.Error("Ready after Reset")
	}
}
