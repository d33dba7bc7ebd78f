package witimu

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// buildBLEFrame assembles a 20-byte notification frame from nine raw values:
// acceleration, angular rate, euler angles.
func buildBLEFrame(values [9]int16) []byte {
	frame := []byte{bleFrameStart, bleFrameFlag}
	for _, v := range values {
		frame = binary.LittleEndian.AppendUint16(frame, uint16(v))
	}
	return frame
}

func TestDecodeBLEFrame(t *testing.T) {
	frame := buildBLEFrame([9]int16{
		2048, -2048, 16384, // acc: 1g, -1g, 8g
		8192, -8192, 0, // gyro: 500, -500, 0
		16384, -16384, 8192, // angles: 90, -90, 45
	})
	at := time.Unix(1000, 0)

	s, err := DecodeBLEFrame(0x51, frame, at)
	if err != nil {
		t.Fatalf("DecodeBLEFrame: %v", err)
	}

	if s.Addr != 0x51 {
		t.Errorf("Addr = 0x%02X, want 0x51", s.Addr)
	}

	approx := func(name string, got, want float64) {
		t.Helper()
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	approx("Acc[0]", s.Acc[0], 1)
	approx("Acc[1]", s.Acc[1], -1)
	approx("Acc[2]", s.Acc[2], 8)
	approx("Gyro[0]", s.Gyro[0], 500)
	approx("Gyro[1]", s.Gyro[1], -500)
	approx("Roll", s.Roll(), 90)
	approx("Pitch", s.Pitch(), -90)
	approx("Yaw", s.Yaw(), 45)

	// BLE frames carry no magnetometer data.
	if s.Mag != [3]float64{} {
		t.Errorf("Mag = %v, want zeros", s.Mag)
	}
}

func TestDecodeBLEFrame_Rejects(t *testing.T) {
	valid := buildBLEFrame([9]int16{})

	badFlag := make([]byte, len(valid))
	copy(badFlag, valid)
	badFlag[1] = 0x51

	tests := []struct {
		name  string
		frame []byte
	}{
		{"short frame", valid[:19]},
		{"long frame", append(append([]byte{}, valid...), 0x00)},
		{"wrong start byte", append([]byte{0x54}, valid[1:]...)},
		{"wrong flag byte", badFlag},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBLEFrame(0x50, tt.frame, time.Now()); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}
