// Package collab defines the narrow interfaces THE CORE uses to invoke its
// external collaborators (spec.md §6): the pixel-level numerical kernels,
// the pose-graph solver, and the frame source. Each is a pure function
// object over immutable inputs, kept out of scope per spec.md §1.
package collab

import (
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/posex"
)

// TrackResult is the outcome of one SE(3)/Sim(3) tracking attempt against a
// reference. Diverged and TrackingWasGood drive Tracking's divergence
// check (§4.6) and the Relocalizer's success criterion (§4.5).
type TrackResult struct {
	Relative        posex.Sim3
	Residual        float64
	PointUsage      float64
	GoodCount       int
	BadCount        int
	Diverged        bool
	TrackingWasGood bool
}

// SE3Tracker estimates the rigid relative transform between a reference
// keyframe and a new frame, given an initial guess.
type SE3Tracker interface {
	TrackFrame(reference *frame.Keyframe, f *frame.Frame, init posex.Sim3) TrackResult
}

// Sim3Tracker is the Constraint-Search analog, estimating a similarity
// transform between two keyframes.
type Sim3Tracker interface {
	TrackKeyframe(reference, other *frame.Keyframe, init posex.Sim3) TrackResult
}

// DepthMap is the per-keyframe inverse-depth estimator.
type DepthMap interface {
	RandomInit(kf *frame.Keyframe)
	GTDepthInit(kf *frame.Keyframe, seed []float32)
	CreateKeyFrame(kf *frame.Keyframe, from *frame.Keyframe, propagated *frame.Frame)
	SetFromExistingKF(kf, existing *frame.Keyframe)
	UpdateKeyFrame(kf *frame.Keyframe, observed *frame.Frame)
}

// PoseGraphSolver runs the nonlinear pose-graph optimization treated as
// opaque per spec.md §1.
type PoseGraphSolver interface {
	Optimize(vertexIDs []int, poses []posex.Sim3, edges []frame.Constraint) ([]posex.Sim3, error)
}

// FrameSource supplies frames with monotonically increasing ids and
// timestamps, e.g. a camera driver or synthetic generator.
type FrameSource interface {
	Next() (*frame.Frame, bool)
}
