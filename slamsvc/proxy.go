package slamsvc

import (
	"sync/atomic"

	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/constraint"
	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/tracking"
)

// trackingHandoffProxy breaks the Mapping <-> Tracking construction cycle:
// Mapping is built before the Tracker it needs to hand relocalization
// results to exists, so it is given this proxy and the real target is
// filled in once the Tracker is constructed.
type trackingHandoffProxy struct {
	target atomic.Pointer[tracking.Tracker]
}

func (p *trackingHandoffProxy) TakeRelocalizeResult(candidateKF *frame.Keyframe, f *frame.Frame, probe collab.TrackResult) error {
	t := p.target.Load()
	if t == nil {
		return errkind.ErrNotInitialized
	}
	return t.TakeRelocalizeResult(candidateKF, f, probe)
}

// constraintSinkProxy breaks the Mapping <-> Constraint-Search construction
// cycle the same way.
type constraintSinkProxy struct {
	target atomic.Pointer[constraint.Search]
}

func (p *constraintSinkProxy) SubmitNewKeyframe(kf *frame.Keyframe) {
	if t := p.target.Load(); t != nil {
		t.SubmitNewKeyframe(kf)
	}
}
