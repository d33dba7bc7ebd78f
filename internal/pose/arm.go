// Package pose turns sensor orientations into end-effector positions: yaw
// normalization against mounting offsets, two-link forward kinematics, and
// the workspace mapping into the robot's reachable box.
package pose

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Default link lengths in meters, measured on the rig.
const (
	DefaultL1 = 0.25
	DefaultL2 = 0.27
)

// Euler is an orientation in radians.
type Euler struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Arm models the two-link arm. Each link points along its local x axis and
// is rotated by its sensor's orientation.
type Arm struct {
	L1 float64
	L2 float64
}

// NewArm creates an arm with the given link lengths in meters.
func NewArm(l1, l2 float64) Arm {
	return Arm{L1: l1, L2: l2}
}

// EndEffector computes the arm tip position from the two link orientations:
// R1*[L1,0,0] + R2*[L2,0,0].
func (a Arm) EndEffector(link1, link2 Euler) r3.Vec {
	return r3.Add(
		Rotate(link1, r3.Vec{X: a.L1}),
		Rotate(link2, r3.Vec{X: a.L2}),
	)
}

// Rotate applies R = Rz(yaw) * Ry(pitch) * Rx(roll) to v.
func Rotate(e Euler, v r3.Vec) r3.Vec {
	rx := r3.NewRotation(e.Roll, r3.Vec{X: 1})
	ry := r3.NewRotation(e.Pitch, r3.Vec{Y: 1})
	rz := r3.NewRotation(e.Yaw, r3.Vec{Z: 1})
	return rz.Rotate(ry.Rotate(rx.Rotate(v)))
}
