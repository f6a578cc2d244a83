// Package posex implements the Sim(3)/SE(3) pose algebra used to represent
// camera-to-world transforms and inter-keyframe constraints. It is grounded
// on go.viam.com/rdk/spatialmath's use of gonum's quaternion package and
// go-gl/mathgl for rigid-transform math, generalized here to a similarity
// transform (rotation + translation + scale) instead of spatialmath's
// pure-rigid Pose.
package posex

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/num/quat"
)

// Sim3 is a similarity transform: p_world = scale * R*p_camera*R^-1 + translation.
type Sim3 struct {
	Rotation    quat.Number // unit quaternion
	Translation mgl64.Vec3
	Scale       float64
}

// Identity returns the identity similarity transform.
func Identity() Sim3 {
	return Sim3{Rotation: quat.Number{Real: 1}, Translation: mgl64.Vec3{}, Scale: 1}
}

// NewSE3 builds a Sim3 with unit scale from a rotation and translation,
// the SE(3) special case used by SE(3) frame-to-frame tracking.
func NewSE3(rot quat.Number, trans mgl64.Vec3) Sim3 {
	return Sim3{Rotation: normalize(rot), Translation: trans, Scale: 1}
}

func normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Rotate applies only the rotational part of s to v.
func (s Sim3) Rotate(v mgl64.Vec3) mgl64.Vec3 {
	p := quat.Number{Imag: v.X(), Jmag: v.Y(), Kmag: v.Z()}
	r := quat.Mul(quat.Mul(s.Rotation, p), quat.Conj(s.Rotation))
	return mgl64.Vec3{r.Imag, r.Jmag, r.Kmag}
}

// Transform applies the full similarity transform to a point.
func (s Sim3) Transform(v mgl64.Vec3) mgl64.Vec3 {
	return s.Rotate(v).Mul(s.Scale).Add(s.Translation)
}

// Compose returns s ∘ other, i.e. applying other first then s.
func (s Sim3) Compose(other Sim3) Sim3 {
	return Sim3{
		Rotation:    normalize(quat.Mul(s.Rotation, other.Rotation)),
		Translation: s.Rotate(other.Translation).Mul(s.Scale).Add(s.Translation),
		Scale:       s.Scale * other.Scale,
	}
}

// Inverse returns the inverse similarity transform.
func (s Sim3) Inverse() Sim3 {
	invRot := quat.Conj(s.Rotation) // unit quaternion: conjugate == inverse
	invScale := 1 / s.Scale
	inv := Sim3{Rotation: invRot, Scale: invScale}
	inv.Translation = inv.Rotate(s.Translation).Mul(-invScale)
	return inv
}

// TranslationNorm returns the Euclidean length of the translation part.
func (s Sim3) TranslationNorm() float64 {
	return s.Translation.Len()
}

// ViewingAngle returns the angle in radians between s's and other's forward
// axes, used by Trackable-KF Search's angle-gate.
func (s Sim3) ViewingAngle(other Sim3) float64 {
	fwd := mgl64.Vec3{0, 0, 1}
	a := s.Rotate(fwd).Normalize()
	b := other.Rotate(fwd).Normalize()
	cos := a.Dot(b)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// RelativeTo returns the transform of other expressed in s's frame, i.e.
// s^-1 ∘ other -- the standard "relative pose" used for overlap scoring
// and edge estimation.
func (s Sim3) RelativeTo(other Sim3) Sim3 {
	return s.Inverse().Compose(other)
}

// Finite reports whether every component of s is a finite float, used to
// detect a diverged solver result (§7 SolverDiverged).
func (s Sim3) Finite() bool {
	vals := []float64{
		s.Rotation.Real, s.Rotation.Imag, s.Rotation.Jmag, s.Rotation.Kmag,
		s.Translation.X(), s.Translation.Y(), s.Translation.Z(),
		s.Scale,
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
