package modbus

import (
	"bytes"
	"testing"
)

// TestCRC16_KnownVectors checks the checksum against the standard Modbus
// check value and the WIT probe request frame.
func TestCRC16_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"standard check value", []byte("123456789"), 0x4B37},
		{"WIT probe request", []byte{0x50, 0x03, 0x00, 0x34, 0x00, 0x0C}, 0x8009},
		{"empty input", nil, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16(% X) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
			}
		})
	}
}

// TestAppendCRC verifies the checksum is appended low byte first.
func TestAppendCRC(t *testing.T) {
	frame := AppendCRC([]byte{0x50, 0x03, 0x00, 0x34, 0x00, 0x0C})
	want := []byte{0x50, 0x03, 0x00, 0x34, 0x00, 0x0C, 0x09, 0x80}
	if !bytes.Equal(frame, want) {
		t.Errorf("AppendCRC = % X, want % X", frame, want)
	}
}

func TestVerifyCRC(t *testing.T) {
	valid := []byte{0x50, 0x03, 0x00, 0x34, 0x00, 0x0C, 0x09, 0x80}
	if !VerifyCRC(valid) {
		t.Error("VerifyCRC rejected a valid frame")
	}

	corrupted := []byte{0x50, 0x03, 0x00, 0x35, 0x00, 0x0C, 0x09, 0x80}
	if VerifyCRC(corrupted) {
		t.Error("VerifyCRC accepted a corrupted frame")
	}

	if VerifyCRC([]byte{0x50, 0x03}) {
		t.Error("VerifyCRC accepted a frame too short to carry a checksum")
	}
}
