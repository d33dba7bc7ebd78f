package pose

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func vecApprox(t *testing.T, name string, got, want r3.Vec) {
	t.Helper()
	const tol = 1e-9
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol || math.Abs(got.Z-want.Z) > tol {
		t.Errorf("%s = (%.6f, %.6f, %.6f), want (%.6f, %.6f, %.6f)",
			name, got.X, got.Y, got.Z, want.X, want.Y, want.Z)
	}
}

// TestArm_EndEffector checks the forward kinematics against poses that can
// be worked out by hand.
func TestArm_EndEffector(t *testing.T) {
	arm := NewArm(DefaultL1, DefaultL2)
	quarter := math.Pi / 2

	tests := []struct {
		name         string
		link1, link2 Euler
		want         r3.Vec
	}{
		{
			name: "arm straight out",
			want: r3.Vec{X: DefaultL1 + DefaultL2},
		},
		{
			name:  "both links yawed left",
			link1: Euler{Yaw: quarter},
			link2: Euler{Yaw: quarter},
			want:  r3.Vec{Y: DefaultL1 + DefaultL2},
		},
		{
			name:  "elbow bend",
			link1: Euler{Yaw: quarter},
			want:  r3.Vec{X: DefaultL2, Y: DefaultL1},
		},
		{
			name:  "both links pitched up",
			link1: Euler{Pitch: quarter},
			link2: Euler{Pitch: quarter},
			want:  r3.Vec{Z: -(DefaultL1 + DefaultL2)},
		},
		{
			name:  "roll leaves the link axis fixed",
			link1: Euler{Roll: quarter},
			link2: Euler{Roll: -quarter},
			want:  r3.Vec{X: DefaultL1 + DefaultL2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := arm.EndEffector(tt.link1, tt.link2)
			vecApprox(t, "EndEffector", got, tt.want)
		})
	}
}

// TestRotate_Composition verifies the Rz*Ry*Rx order: with both yaw and
// pitch set, pitch is applied before yaw.
func TestRotate_Composition(t *testing.T) {
	quarter := math.Pi / 2

	// Pitch drops x onto -z, then yaw about z leaves it there.
	got := Rotate(Euler{Pitch: quarter, Yaw: quarter}, r3.Vec{X: 1})
	vecApprox(t, "Rotate", got, r3.Vec{Z: -1})

	// Roll first has no effect on x, then yaw turns it to y.
	got = Rotate(Euler{Roll: quarter, Yaw: quarter}, r3.Vec{X: 1})
	vecApprox(t, "Rotate", got, r3.Vec{Y: 1})
}
