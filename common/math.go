package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Pose is the planar part of a transform: position in the XY plane and a
// rotation about Z.
type Pose struct {
	X, Y  float64
	Angle float64
}

// PoseFromMatrix extracts the planar pose of a column-major transform.
func PoseFromMatrix(m mgl32.Mat4) Pose {
	return Pose{
		X:     float64(m[12]),
		Y:     float64(m[13]),
		Angle: math.Atan2(float64(m[1]), float64(m[0])),
	}
}

// Scale returns the length of each basis column of m.
func Scale(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{
		m.Col(0).Vec3().Len(),
		m.Col(1).Vec3().Len(),
		m.Col(2).Vec3().Len(),
	}
}

// ComposeMatrix builds a transform from p, keeping the Z translation and
// scale of prev. A degenerate prev scale falls back to 1.
func ComposeMatrix(p Pose, prev mgl32.Mat4) mgl32.Mat4 {
	s := Scale(prev)
	for i := range s {
		if s[i] == 0 {
			s[i] = 1
		}
	}
	return mgl32.Translate3D(float32(p.X), float32(p.Y), prev[14]).
		Mul4(mgl32.HomogRotate3DZ(float32(p.Angle))).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// Finite reports whether every element of m is a finite number.
func Finite(m mgl32.Mat4) bool {
	for _, v := range m {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func Lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}
