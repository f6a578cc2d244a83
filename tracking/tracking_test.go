package tracking_test

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/test"

	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/poselog"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/tracking"
)

type se3Stub struct {
	result collab.TrackResult
}

func (s se3Stub) TrackFrame(reference *frame.Keyframe, f *frame.Frame, init posex.Sim3) collab.TrackResult {
	return s.result
}

type mappingSinkStub struct {
	tracked []*frame.Frame
	reloc   []*frame.Frame
}

func (m *mappingSinkStub) SubmitTrackedFrame(f *frame.Frame, blockUntilMapped bool) {
	m.tracked = append(m.tracked, f)
}

func (m *mappingSinkStub) SubmitToRelocalizer(f *frame.Frame) {
	m.reloc = append(m.reloc, f)
}

type factoryStub struct {
	created int
	err     error
}

func (f *factoryStub) CreateKeyframe(from *frame.Keyframe, newFrame *frame.Frame) (*frame.Keyframe, error) {
	f.created++
	if f.err != nil {
		return nil, f.err
	}
	return frame.NewKeyframe(newFrame, []float32{1}, nil), nil
}

type pubStub struct {
	trackedFrameIDs []int64
	poses           []posex.Sim3
}

func (p *pubStub) PublishTrackedFrame(frameID int64, pose posex.Sim3) {
	p.trackedFrameIDs = append(p.trackedFrameIDs, frameID)
}

func (p *pubStub) PublishPose(pose posex.Sim3) {
	p.poses = append(p.poses, pose)
}

func newHarness(cfg config.Config, se3Result collab.TrackResult) (*tracking.Tracker, *curkf.Cell, *mappingSinkStub, *factoryStub, *pubStub, *poselog.Registry, *graph.Graph) {
	log := logging.NewTest("tracking")
	g := graph.New(log)
	cur := curkf.New()
	registry := poselog.New()
	search := candidates.New(g, nil)
	mapping := &mappingSinkStub{}
	factory := &factoryStub{}
	pub := &pubStub{}
	tr := tracking.New(log, cfg, cur, registry, search, se3Stub{result: se3Result}, &posex.ConsistencyLock{}, mapping, factory, pub)
	return tr, cur, mapping, factory, pub, registry, g
}

func TestTrackFrameBeforeInitializeErrors(t *testing.T) {
	tr, _, _, _, _, _, _ := newHarness(config.Default(), collab.TrackResult{})
	err := tr.TrackFrame(frame.New(1, time.Time{}, nil), false)
	test.That(t, err, test.ShouldBeError, errkind.ErrNotInitialized)
}

func TestTrackFrameHappyPathAppendsAndPublishes(t *testing.T) {
	tr, cur, mapping, _, pub, registry, _ := newHarness(config.Default(), collab.TrackResult{
		Relative: posex.Identity(), TrackingWasGood: true, PointUsage: 1,
	})
	refKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), nil, nil)
	cur.Set(refKF)

	newFrame := frame.New(1, time.Time{}, nil)
	err := tr.TrackFrame(newFrame, false)

	test.That(t, err, test.ShouldBeNil)
	test.That(t, registry.Len(), test.ShouldEqual, 1)
	test.That(t, len(mapping.tracked), test.ShouldEqual, 1)
	test.That(t, pub.trackedFrameIDs, test.ShouldResemble, []int64{1})
}

func TestDivergedTrackRoutesFollowingFrameToRelocalizer(t *testing.T) {
	tr, cur, mapping, _, _, _, _ := newHarness(config.Default(), collab.TrackResult{Diverged: true})
	refKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), nil, nil)
	cur.Set(refKF)

	err := tr.TrackFrame(frame.New(1, time.Time{}, nil), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.TrackingGood(), test.ShouldBeFalse)

	err = tr.TrackFrame(frame.New(2, time.Time{}, nil), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(mapping.reloc), test.ShouldEqual, 1)
}

func TestKeyframeSwitchCreatesNewKeyframeWhenScoreHigh(t *testing.T) {
	cfg := config.Default()
	cfg.MinNumMapped = 0
	cfg.InitPhaseCount = 5

	tr, cur, _, factory, _, _, g := newHarness(cfg, collab.TrackResult{
		Relative: posex.Sim3{Rotation: posex.Identity().Rotation, Translation: mgl64.Vec3{10, 0, 0}, Scale: 1},
		TrackingWasGood: true, PointUsage: 1,
	})

	refKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), []float32{1}, nil)
	refKF.IncMapped()
	test.That(t, g.InsertKeyframe(refKF), test.ShouldBeNil)
	cur.Set(refKF)

	err := tr.TrackFrame(frame.New(1, time.Time{}, nil), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, factory.created, test.ShouldEqual, 1)
	test.That(t, cur.Get().ID, test.ShouldEqual, int64(1))
}

func TestTakeRelocalizeResultRestoresTrackingGood(t *testing.T) {
	tr, cur, _, _, pub, registry, _ := newHarness(config.Default(), collab.TrackResult{})
	tr.SetTrackingIsBad()
	test.That(t, tr.TrackingGood(), test.ShouldBeFalse)

	candidate := frame.NewKeyframe(frame.New(5, time.Time{}, nil), nil, nil)
	f := frame.New(6, time.Time{}, nil)
	probe := collab.TrackResult{Relative: posex.Identity(), TrackingWasGood: true, GoodCount: 9, BadCount: 1}

	err := tr.TakeRelocalizeResult(candidate, f, probe)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.TrackingGood(), test.ShouldBeTrue)
	test.That(t, cur.Get().ID, test.ShouldEqual, int64(5))
	test.That(t, registry.Len(), test.ShouldEqual, 1)
	test.That(t, len(pub.trackedFrameIDs), test.ShouldEqual, 1)
}

func TestTakeRelocalizeResultRejectsPoorProbe(t *testing.T) {
	tr, _, _, _, _, _, _ := newHarness(config.Default(), collab.TrackResult{})
	candidate := frame.NewKeyframe(frame.New(5, time.Time{}, nil), nil, nil)
	f := frame.New(6, time.Time{}, nil)
	probe := collab.TrackResult{TrackingWasGood: true, GoodCount: 1, BadCount: 9}

	err := tr.TakeRelocalizeResult(candidate, f, probe)
	test.That(t, err, test.ShouldBeError, errkind.ErrRelocalizationFailed)
}

func TestChangeKeyframeForceNoCreateSetsTrackingLost(t *testing.T) {
	tr, cur, _, _, _, _, _ := newHarness(config.Default(), collab.TrackResult{})
	refKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), nil, nil)
	cur.Set(refKF)

	err := tr.ChangeKeyframe(frame.New(1, time.Time{}, nil), true, true, 1.0)
	test.That(t, err, test.ShouldBeError, errkind.ErrTrackingLost)
	test.That(t, tr.TrackingGood(), test.ShouldBeFalse)
}
