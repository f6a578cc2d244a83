package mapping_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/mapping"
	"go.viam.com/slamcore/reloc"
)

type depthStub struct {
	updated  []*frame.Frame
	created  int
}

func (d *depthStub) RandomInit(kf *frame.Keyframe)                                    {}
func (d *depthStub) GTDepthInit(kf *frame.Keyframe, seed []float32)                    {}
func (d *depthStub) CreateKeyFrame(kf *frame.Keyframe, from *frame.Keyframe, f *frame.Frame) { d.created++ }
func (d *depthStub) SetFromExistingKF(kf, existing *frame.Keyframe)                    {}
func (d *depthStub) UpdateKeyFrame(kf *frame.Keyframe, observed *frame.Frame)          { d.updated = append(d.updated, observed) }

type trackingHandoffStub struct{ calls int }

func (t *trackingHandoffStub) TakeRelocalizeResult(candidateKF *frame.Keyframe, f *frame.Frame, probe collab.TrackResult) error {
	t.calls++
	return nil
}

type constraintSinkStub struct{ submitted []*frame.Keyframe }

func (c *constraintSinkStub) SubmitNewKeyframe(kf *frame.Keyframe) {
	c.submitted = append(c.submitted, kf)
}

type publisherStub struct {
	keyframes   []*frame.Keyframe
	depthImages []*frame.Keyframe
}

func (p *publisherStub) PublishKeyframe(kf *frame.Keyframe)   { p.keyframes = append(p.keyframes, kf) }
func (p *publisherStub) PublishDepthImage(kf *frame.Keyframe) { p.depthImages = append(p.depthImages, kf) }

func TestCreateKeyframeInsertsAndNotifiesConstraint(t *testing.T) {
	log := logging.NewTest("mapping")
	g := graph.New(log)
	cur := curkf.New()
	depth := &depthStub{}
	constraintSink := &constraintSinkStub{}
	pub := &publisherStub{}
	cfg := config.Default()

	m := mapping.New(log, cfg, depth, g, cur, reloc.New(log, nil, 1), &trackingHandoffStub{}, constraintSink, pub)

	from := frame.NewKeyframe(frame.New(0, time.Time{}, nil), []float32{1, 2}, nil)
	test.That(t, g.InsertKeyframe(from), test.ShouldBeNil)

	newFrame := frame.New(1, time.Time{}, nil)
	kf, err := m.CreateKeyframe(from, newFrame)

	test.That(t, err, test.ShouldBeNil)
	test.That(t, kf.ID, test.ShouldEqual, int64(1))
	test.That(t, depth.created, test.ShouldEqual, 1)
	test.That(t, g.Len(), test.ShouldEqual, 2)
	test.That(t, len(constraintSink.submitted), test.ShouldEqual, 1)
	test.That(t, g.EdgeCount(), test.ShouldEqual, 1)
}

func TestApplyOptimizationMergeSignalsLatchAndFlagsCurrent(t *testing.T) {
	log := logging.NewTest("mapping")
	g := graph.New(log)
	cur := curkf.New()
	cfg := config.Default()

	m := mapping.New(log, cfg, &depthStub{}, g, cur, reloc.New(log, nil, 1), &trackingHandoffStub{}, &constraintSinkStub{}, &publisherStub{})

	curKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), nil, nil)
	cur.Set(curKF)

	before := m.OptimizationMerged()
	m.ApplyOptimizationMerge()

	select {
	case <-before.Done():
	default:
		t.Fatal("latch from before the merge was not signaled")
	}
	test.That(t, curKF.TakeDepthUpdated(), test.ShouldBeTrue)

	after := m.OptimizationMerged()
	test.That(t, after.Signaled(), test.ShouldBeFalse)
}
