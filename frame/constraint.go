package frame

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/slamcore/posex"
)

// Constraint is a directed edge between two keyframes carrying an estimated
// Sim(3) relative transform and its information matrix. Edges are
// immutable once added to the graph (§3).
type Constraint struct {
	From, To int // keyframe ids, not graph indices
	Relative posex.Sim3
	Info     *mat.SymDense
}

// NewConstraint builds an immutable edge. info may be nil, in which case
// callers treat the edge as isotropic-weighted.
func NewConstraint(from, to int, rel posex.Sim3, info *mat.SymDense) Constraint {
	return Constraint{From: from, To: to, Relative: rel, Info: info}
}
