// Package slamsvc wires the four coordination threads, the Relocalizer, and
// the shared state (Keyframe Graph, Frame Pose Registry, Current-Keyframe
// Cell) into a single external surface, the way
// go.viam.com/rdk/services/slam/builtin assembles its dataprocess,
// mapping, and cartofacade collaborators behind one Service.
package slamsvc

import (
	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/posex"
)

// Collaborators bundles every external dependency named in spec.md §6: the
// pixel-level numerical kernels, the pose-graph solver, and the output
// sink. None of these are implemented here; they are opaque per spec.md §1.
type Collaborators struct {
	SE3        collab.SE3Tracker
	Sim3       collab.Sim3Tracker
	Depth      collab.DepthMap
	Solver     collab.PoseGraphSolver
	Appearance candidates.AppearanceIndex // optional; nil selects NoopAppearance
	Sink       Sink
}

// Sink is the ultimate external consumer of published SLAM events (spec.md
// §6): a gRPC stream, a UI, a file writer. Publisher fans events out to it
// fire-and-forget from a single drain goroutine.
type Sink interface {
	TrackedFrame(frameID int64, pose posex.Sim3)
	Pose(pose posex.Sim3)
	Keyframe(kf *frame.Keyframe)
	DepthImage(kf *frame.Keyframe)
}
