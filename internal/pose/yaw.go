package pose

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/armlink-data/teleop.rig/internal/units"
)

// YawMode selects how raw yaw readings are normalized. The sensors boot with
// arbitrary yaw references, so the rig has to agree on a zero before the arm
// pose means anything.
type YawMode string

const (
	// YawModeNormal records each sensor's first valid yaw as its offset, so
	// the boot orientation becomes zero.
	YawModeNormal YawMode = "NORMAL"
	// YawModeAuto guesses the offset from the first valid frame: near the
	// wrap point the sensor is assumed to face backwards.
	YawModeAuto YawMode = "AUTO"
	// YawModeSimple applies a stateless flip beyond the threshold.
	YawModeSimple YawMode = "SIMPLE"
	// YawModeOff applies the fixed half-turn shift the original rig used
	// when normalization was disabled.
	YawModeOff YawMode = "OFF"
)

// yawThreshold is the angle in degrees beyond which AUTO and SIMPLE treat a
// reading as wrapped.
const yawThreshold = 100.0

// frameEpsilon rejects all-zero frames. A sensor that has not locked on yet
// streams exact zeros.
const frameEpsilon = 0.01

// ParseYawMode converts a config string into a YawMode.
func ParseYawMode(s string) (YawMode, error) {
	switch YawMode(strings.ToUpper(strings.TrimSpace(s))) {
	case YawModeNormal:
		return YawModeNormal, nil
	case YawModeAuto:
		return YawModeAuto, nil
	case YawModeSimple:
		return YawModeSimple, nil
	case YawModeOff, "":
		return YawModeOff, nil
	}
	return "", fmt.Errorf("unknown yaw mode %q: want NORMAL, AUTO, SIMPLE, or OFF", s)
}

// FrameValid reports whether an euler frame in degrees carries a real
// measurement.
func FrameValid(roll, pitch, yaw float64) bool {
	return math.Abs(roll) > frameEpsilon ||
		math.Abs(pitch) > frameEpsilon ||
		math.Abs(yaw) > frameEpsilon
}

// YawNormalizer removes per-sensor yaw offsets according to its mode. It is
// safe for concurrent use; the tracker and the publish gate both read it.
type YawNormalizer struct {
	mode YawMode

	mu      sync.Mutex
	offsets map[byte]float64
}

// NewYawNormalizer creates a normalizer in the given mode.
func NewYawNormalizer(mode YawMode) *YawNormalizer {
	return &YawNormalizer{
		mode:    mode,
		offsets: make(map[byte]float64),
	}
}

// Mode returns the normalizer's mode.
func (n *YawNormalizer) Mode() YawMode {
	return n.mode
}

// Normalize returns the normalized yaw in degrees for sensor addr. The frame
// is rejected (ok false) when all angles are near zero; offsets are only ever
// recorded from valid frames.
func (n *YawNormalizer) Normalize(addr byte, roll, pitch, yaw float64) (normalized float64, ok bool) {
	if !FrameValid(roll, pitch, yaw) {
		return 0, false
	}

	switch n.mode {
	case YawModeNormal:
		n.mu.Lock()
		offset, have := n.offsets[addr]
		if !have {
			offset = yaw
			n.offsets[addr] = offset
		}
		n.mu.Unlock()
		return units.WrapDeg180(yaw - offset), true

	case YawModeAuto:
		n.mu.Lock()
		offset, have := n.offsets[addr]
		if !have {
			switch {
			case yaw > yawThreshold:
				offset = 180
			case yaw < -yawThreshold:
				offset = -180
			default:
				offset = yaw
			}
			n.offsets[addr] = offset
		}
		n.mu.Unlock()
		return units.WrapDeg180(yaw - offset), true

	case YawModeSimple:
		switch {
		case yaw > yawThreshold:
			return yaw - 180, true
		case yaw < -yawThreshold:
			return yaw + 180, true
		}
		return yaw, true

	default: // YawModeOff
		// Preserved from the original rig: disabling normalization still
		// shifted readings by a half turn.
		switch {
		case yaw < 0:
			return yaw + 180, true
		case yaw > 0:
			return yaw - 180, true
		}
		return yaw, true
	}
}

// HasOffset reports whether sensor addr has a recorded offset. Modes without
// per-sensor state are always ready.
func (n *YawNormalizer) HasOffset(addr byte) bool {
	if n.mode == YawModeSimple || n.mode == YawModeOff {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.offsets[addr]
	return ok
}

// Ready reports whether every listed sensor has an offset. Publishing holds
// until this is true so frames never mix zeroed and raw yaws.
func (n *YawNormalizer) Ready(addrs []byte) bool {
	for _, addr := range addrs {
		if !n.HasOffset(addr) {
			return false
		}
	}
	return true
}

// Reset forgets all recorded offsets. The next valid frame per sensor
// re-zeroes it.
func (n *YawNormalizer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offsets = make(map[byte]float64)
}
