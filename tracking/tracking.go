// Package tracking implements the Tracking Thread (spec.md §4.6): the
// real-time per-frame SE(3) pipeline, keyframe-switch trigger, and
// relocalization handoff. It is the hot path: every suspension point it may
// hit is enumerated in spec.md §5, and it must never stall waiting on
// Mapping unless the caller explicitly asked to block.
package tracking

import (
	"math"
	"sync"
	"sync/atomic"

	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/poselog"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/reloc"
)

// MappingSink is Tracking's view of Mapping: submit a tracked frame for
// depth refinement, or hand a frame to the Relocalizer when tracking is
// bad (§4.7).
type MappingSink interface {
	SubmitTrackedFrame(f *frame.Frame, blockUntilMapped bool)
	SubmitToRelocalizer(f *frame.Frame)
}

// KeyframeFactory is Tracking's view of Mapping's keyframe-creation path:
// propagate depth from the previous keyframe and materialize + register a
// new one. Unlike ordinary depth refinement (queued, asynchronous),
// keyframe creation is invoked synchronously so that changeKeyframe's
// postcondition (spec.md §8 invariant 4) holds the instant it returns.
type KeyframeFactory interface {
	CreateKeyframe(from *frame.Keyframe, newFrame *frame.Frame) (*frame.Keyframe, error)
}

// Publisher fans tracked-frame and pose events out to external consumers,
// fire-and-forget (spec.md §6).
type Publisher interface {
	PublishTrackedFrame(frameID int64, pose posex.Sim3)
	PublishPose(pose posex.Sim3)
}

// Tracker is the Tracking Thread's state.
type Tracker struct {
	log      logging.Logger
	cfg      config.Config
	cur      *curkf.Cell
	registry *poselog.Registry
	search   *candidates.Search
	se3      collab.SE3Tracker
	consist  *posex.ConsistencyLock
	mapping  MappingSink
	factory  KeyframeFactory
	pub      Publisher

	mu                 sync.Mutex
	trackingGood       bool
	reference          *frame.Keyframe
	manualTrackingLoss atomic.Bool
}

// New returns a Tracker. trackingGood starts true: Initialize is expected
// to have already seeded the current-keyframe cell.
func New(
	log logging.Logger,
	cfg config.Config,
	cur *curkf.Cell,
	registry *poselog.Registry,
	search *candidates.Search,
	se3 collab.SE3Tracker,
	consist *posex.ConsistencyLock,
	mapping MappingSink,
	factory KeyframeFactory,
	pub Publisher,
) *Tracker {
	return &Tracker{
		log:          log.Named("tracking"),
		cfg:          cfg,
		cur:          cur,
		registry:     registry,
		search:       search,
		se3:          se3,
		consist:      consist,
		mapping:      mapping,
		factory:      factory,
		pub:          pub,
		trackingGood: true,
	}
}

// TrackingGood reports whether the last tracked frame produced a usable
// pose. When false, TrackFrame routes incoming frames to the Relocalizer.
func (t *Tracker) TrackingGood() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackingGood
}

// SetTrackingIsBad forces a transition into the recovery state, e.g. from
// an operator-triggered "lost" signal.
func (t *Tracker) SetTrackingIsBad() {
	t.mu.Lock()
	t.trackingGood = false
	t.reference = nil
	t.mu.Unlock()
}

// SetManualTrackingLoss requests that the next TrackFrame call treat
// tracking as lost even if the SE(3) tracker would otherwise have
// succeeded (§4.6 step 5).
func (t *Tracker) SetManualTrackingLoss() {
	t.manualTrackingLoss.Store(true)
}

// TrackFrame runs the per-frame pipeline described in spec.md §4.6.
func (t *Tracker) TrackFrame(newFrame *frame.Frame, blockUntilMapped bool) error {
	if !t.TrackingGood() {
		t.mapping.SubmitToRelocalizer(newFrame)
		return nil
	}

	curKF := t.cur.Get()
	if curKF == nil {
		return errkind.ErrNotInitialized
	}

	t.mu.Lock()
	reference := t.reference
	t.mu.Unlock()
	if reference == nil || reference.ID != curKF.ID || curKF.TakeDepthUpdated() {
		reference = curKF
		t.mu.Lock()
		t.reference = reference
		t.mu.Unlock()
	}

	init := t.initialGuess(reference)

	res := t.se3.TrackFrame(reference, newFrame, init)

	graphLen := t.search.GraphLen()
	manualLoss := t.manualTrackingLoss.Swap(false)
	if res.Diverged || (graphLen > t.cfg.InitPhaseCount && !res.TrackingWasGood) || manualLoss {
		t.mu.Lock()
		t.reference = nil
		t.trackingGood = false
		t.mu.Unlock()
		t.log.Warnw("tracking lost", "frameID", newFrame.ID, "diverged", res.Diverged, "manual", manualLoss)
		return nil
	}

	reference.IncTracked()
	newFrame.Pose.SetSim3(reference.Pose.Sim3().Compose(res.Relative))
	newFrame.Pose.SetParent(reference.ID)
	if err := t.registry.Append(newFrame.ID, newFrame.Pose); err != nil {
		return err
	}
	t.pub.PublishTrackedFrame(newFrame.ID, newFrame.Pose.Sim3())
	t.pub.PublishPose(newFrame.Pose.Sim3())
	t.mapping.SubmitTrackedFrame(newFrame, blockUntilMapped)

	if curKF.NumMapped() > int64(t.cfg.MinNumMapped) {
		t.maybeSwitchKeyframe(curKF, newFrame, res)
	}
	return nil
}

func (t *Tracker) initialGuess(reference *frame.Keyframe) posex.Sim3 {
	t.consist.RLock()
	defer t.consist.RUnlock()

	last, ok := t.registry.Last()
	if !ok {
		return posex.Identity()
	}
	lastSim := last.Pose.Sim3()
	refSim := reference.Pose.Sim3()
	// lastPose^-1 . referencePose^-1 . lastPose, per spec.md §4.6 step 3.
	return lastSim.Inverse().Compose(refSim.Inverse()).Compose(lastSim)
}

func (t *Tracker) maybeSwitchKeyframe(curKF *frame.Keyframe, newFrame *frame.Frame, res collab.TrackResult) {
	d := res.Relative.TranslationNorm() * curKF.MeanInverseDepth()
	dsq := d * d
	score := refFrameScore(dsq, res.PointUsage, t.cfg.KFDistWeight, t.cfg.KFUsageWeight)

	graphLen := t.search.GraphLen()
	minVal := math.Min(0.2+float64(graphLen)*0.8/float64(t.cfg.InitPhaseCount), 1.0)
	if graphLen < t.cfg.InitPhaseCount {
		minVal *= 0.7
	}

	if score > minVal {
		if err := t.ChangeKeyframe(newFrame, false, true, 1.0); err != nil {
			t.log.Warnw("keyframe switch failed", "error", err)
		}
	}
}

// refFrameScore combines the translation-scaled squared distance with the
// tracker's point usage into the keyframe-switch score named in spec.md
// §4.6, matching Trackable-KF Search's getRefFrameScore
// (distanceSquared*distWeight² + (1-usage)²*usageWeight²) so the two
// packages share one scoring rule. Lower usage (worse coverage) inflates
// the score, encouraging an earlier switch.
func refFrameScore(dsq, usage, distWeight, usageWeight float64) float64 {
	return dsq*distWeight*distWeight + (1-usage)*(1-usage)*usageWeight*usageWeight
}

// ChangeKeyframe implements the keyframe-switch decision of spec.md §4.6:
// re-activate an existing keyframe if Trackable-KF Search finds one within
// maxScore, else promote newFrame to a new keyframe (force && !noCreate),
// else mark tracking bad (force && noCreate).
func (t *Tracker) ChangeKeyframe(newFrame *frame.Frame, noCreate, force bool, maxScore float64) error {
	curKF := t.cur.Get()
	if curKF == nil {
		return errkind.ErrNotInitialized
	}

	query := frame.NewKeyframe(newFrame, nil, nil)
	if t.cfg.DoKFReActivation {
		if cand, ok := t.search.FindRePositionCandidate(query, candidates.DefaultParams(t.cfg), maxScore, nil); ok {
			t.cur.Set(cand)
			t.log.Infow("re-activated keyframe", "keyframeID", cand.ID)
			return nil
		}
	}

	if force && !noCreate {
		kf, err := t.factory.CreateKeyframe(curKF, newFrame)
		if err != nil {
			return err
		}
		t.cur.Set(kf)
		t.mu.Lock()
		t.reference = kf
		t.mu.Unlock()
		t.log.Infow("created keyframe", "keyframeID", kf.ID)
		return nil
	}

	if force && noCreate {
		t.SetTrackingIsBad()
		return errkind.ErrTrackingLost
	}
	return nil
}

// TakeRelocalizeResult re-checks the Relocalizer's probe result against the
// success ratio gate and, if it passes, re-imports the candidate as the
// tracking reference, restores trackingGood and appends the pose (§4.7).
// The SE(3) tracker is not run again: the frame's pose is composed from the
// probe's Relative transform.
func (t *Tracker) TakeRelocalizeResult(candidateKF *frame.Keyframe, f *frame.Frame, probe collab.TrackResult) error {
	if !t.relocalizationGood(probe) {
		return errkind.ErrRelocalizationFailed
	}

	f.Pose.SetSim3(candidateKF.Pose.Sim3().Compose(probe.Relative))
	f.Pose.SetParent(candidateKF.ID)
	if err := t.registry.Append(f.ID, f.Pose); err != nil {
		return err
	}

	t.mu.Lock()
	t.reference = candidateKF
	t.trackingGood = true
	t.mu.Unlock()

	t.cur.Set(candidateKF)
	t.pub.PublishTrackedFrame(f.ID, f.Pose.Sim3())
	t.pub.PublishPose(f.Pose.Sim3())
	return nil
}

// relocalizationGood re-verifies a probe result against the same success
// ratio gate the Relocalizer itself uses (§4.5/§4.7), so the two places that
// judge the same relocalization notion can't disagree.
func (t *Tracker) relocalizationGood(res collab.TrackResult) bool {
	if !res.TrackingWasGood {
		return false
	}
	total := res.GoodCount + res.BadCount
	if total == 0 {
		return false
	}
	ratio := float64(res.GoodCount) / float64(total)
	return ratio >= reloc.SuccessThreshold(reloc.DefaultMinGoodPerGoodBad)
}
