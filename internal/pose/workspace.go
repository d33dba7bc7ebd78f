package pose

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Range is a closed interval on one axis.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Box bounds a workspace on three axes.
type Box struct {
	X Range `json:"x"`
	Y Range `json:"y"`
	Z Range `json:"z"`
}

// Clamp limits p to the box.
func (b Box) Clamp(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: b.X.Clamp(p.X),
		Y: b.Y.Clamp(p.Y),
		Z: b.Z.Clamp(p.Z),
	}
}

// Workspace maps raw end-effector points into the robot's reachable box:
// clamp to the source box, then per-axis affine interpolation into the
// target box.
type Workspace struct {
	Source Box `json:"source"`
	Target Box `json:"target"`
}

// Map converts a raw point into the target box.
func (w Workspace) Map(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: mapAxis(p.X, w.Source.X, w.Target.X),
		Y: mapAxis(p.Y, w.Source.Y, w.Target.Y),
		Z: mapAxis(p.Z, w.Source.Z, w.Target.Z),
	}
}

func mapAxis(v float64, src, dst Range) float64 {
	v = src.Clamp(v)
	span := src.Max - src.Min
	if span == 0 {
		return dst.Min
	}
	return dst.Min + (v-src.Min)/span*(dst.Max-dst.Min)
}

// DefaultTripleWorkspace is the mapping for the three-sensor RS485 rig,
// measured from the operator's comfortable arm travel.
func DefaultTripleWorkspace() Workspace {
	return Workspace{
		Source: Box{
			X: Range{Min: 0.39, Max: 0.52},
			Y: Range{Min: -0.4, Max: 0.4},
			Z: Range{Min: 0, Max: 0.3},
		},
		Target: Box{
			X: Range{Min: 0.22, Max: 0.42},
			Y: Range{Min: -0.2, Max: 0.2},
			Z: Range{Min: 0.1, Max: 0.4},
		},
	}
}

// DefaultDualWorkspace is the mapping for the two-sensor Bluetooth rig.
func DefaultDualWorkspace() Workspace {
	return Workspace{
		Source: Box{
			X: Range{Min: 0, Max: 0.55},
			Y: Range{Min: -0.4, Max: 0.4},
			Z: Range{Min: 0, Max: 0.3},
		},
		Target: Box{
			X: Range{Min: 0.22, Max: 0.35},
			Y: Range{Min: -0.2, Max: 0.2},
			Z: Range{Min: 0.16, Max: 0.36},
		},
	}
}
