// Package witimu models WIT-series motion sensors: the RS485 register map
// and measurement scaling, a round-robin bus poller, the unlock/write/save
// configuration sequence, and the WT901 Bluetooth LE frame format.
package witimu

import (
	"fmt"
	"time"
)

// Register addresses from the sensor's Modbus map.
const (
	RegSave = 0x00 // write 0 to commit configuration
	RegRate = 0x03 // output rate selector
	RegBaud = 0x04 // serial baud rate selector
	RegAddr = 0x1A // device bus address
	RegAccX = 0x34 // start of the acceleration block
	RegRoll = 0x3D // start of the euler angle block
	RegKey  = 0x69 // configuration unlock register
)

// One poll reads the contiguous measurement block: acceleration, angular
// rate, magnetic field, and euler angles, three registers each.
const (
	BlockStart = RegAccX
	BlockCount = 12
)

// unlockValue written to RegKey enables configuration writes.
const unlockValue = 0xB588

// Measurement scaling. Registers are signed 16-bit, full scale mapped to the
// sensor's measurement range.
const (
	AccScale   = 16.0 / 32768.0   // g per LSB
	GyroScale  = 2000.0 / 32768.0 // deg/s per LSB
	AngleScale = 180.0 / 32768.0  // deg per LSB
)

// Sample is one decoded measurement block from a sensor.
type Sample struct {
	Addr byte
	Time time.Time

	Acc   [3]float64 // acceleration [g]
	Gyro  [3]float64 // angular rate [deg/s]
	Mag   [3]float64 // magnetic field [raw LSB]
	Angle [3]float64 // euler angles roll, pitch, yaw [deg]
}

// Roll returns the euler roll angle in degrees.
func (s Sample) Roll() float64 { return s.Angle[0] }

// Pitch returns the euler pitch angle in degrees.
func (s Sample) Pitch() float64 { return s.Angle[1] }

// Yaw returns the euler yaw angle in degrees.
func (s Sample) Yaw() float64 { return s.Angle[2] }

// DecodeBlock converts the 12 registers polled from BlockStart into
// engineering units.
func DecodeBlock(addr byte, registers []int16, at time.Time) (Sample, error) {
	if len(registers) < BlockCount {
		return Sample{}, fmt.Errorf("measurement block has %d registers, want %d", len(registers), BlockCount)
	}

	s := Sample{Addr: addr, Time: at}
	for i := 0; i < 3; i++ {
		s.Acc[i] = float64(registers[i]) * AccScale
		s.Gyro[i] = float64(registers[3+i]) * GyroScale
		s.Mag[i] = float64(registers[6+i])
		s.Angle[i] = float64(registers[9+i]) * AngleScale
	}
	return s, nil
}
