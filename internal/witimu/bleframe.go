package witimu

import (
	"encoding/binary"
	"fmt"
	"time"
)

// GATT UUIDs for the WT901's Bluetooth LE service.
const (
	BLEServiceUUID = "0000ffe5-0000-1000-8000-00805f9a34fb"
	BLENotifyUUID  = "0000ffe4-0000-1000-8000-00805f9a34fb"
	BLEWriteUUID   = "0000ffe9-0000-1000-8000-00805f9a34fb"
)

// BLE notification frame layout: 0x55 0x61 header, then nine little-endian
// int16 values: acceleration, angular rate, euler angles.
const (
	bleFrameLen   = 20
	bleFrameStart = 0x55
	bleFrameFlag  = 0x61
)

// DecodeBLEFrame decodes one 20-byte notification frame into a Sample. The
// frame carries no magnetometer data, so Mag stays zero. addr tags the
// sample for the tracker the same way a bus address would.
func DecodeBLEFrame(addr byte, frame []byte, at time.Time) (Sample, error) {
	if len(frame) != bleFrameLen {
		return Sample{}, fmt.Errorf("frame length %d, want %d", len(frame), bleFrameLen)
	}
	if frame[0] != bleFrameStart || frame[1] != bleFrameFlag {
		return Sample{}, fmt.Errorf("frame header % X, want %02X %02X", frame[:2], bleFrameStart, bleFrameFlag)
	}

	value := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(frame[2+2*i:])))
	}

	s := Sample{Addr: addr, Time: at}
	for i := 0; i < 3; i++ {
		s.Acc[i] = value(i) * AccScale
		s.Gyro[i] = value(3+i) * GyroScale
		s.Angle[i] = value(6+i) * AngleScale
	}
	return s, nil
}
