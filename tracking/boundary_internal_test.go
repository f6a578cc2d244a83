package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/test"

	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/poselog"
	"go.viam.com/slamcore/posex"
)

type noopMapping struct{ trackedCount, relocCount int }

func (n *noopMapping) SubmitTrackedFrame(f *frame.Frame, blockUntilMapped bool) { n.trackedCount++ }
func (n *noopMapping) SubmitToRelocalizer(f *frame.Frame)                      { n.relocCount++ }

type noopFactory struct{ calls int }

func (n *noopFactory) CreateKeyframe(from *frame.Keyframe, newFrame *frame.Frame) (*frame.Keyframe, error) {
	n.calls++
	return frame.NewKeyframe(newFrame, nil, nil), nil
}

type noopPublisher struct{}

func (noopPublisher) PublishTrackedFrame(int64, posex.Sim3) {}
func (noopPublisher) PublishPose(posex.Sim3)                {}

// TestKeyframeSwitchAtExactThresholdDoesNotSwitch verifies the boundary
// behavior of maybeSwitchKeyframe: score == minVal must not trigger a
// switch, only score > minVal (spec.md §8 boundary behavior).
func TestKeyframeSwitchAtExactThresholdDoesNotSwitch(t *testing.T) {
	log := logging.NewTest("tracking")
	g := graph.New(log)
	cur := curkf.New()
	registry := poselog.New()
	search := candidates.New(g, nil)
	mapping := &noopMapping{}
	factory := &noopFactory{}

	cfg := config.Default()
	cfg.InitPhaseCount = 5

	tr := New(log, cfg, cur, registry, search, nil, &posex.ConsistencyLock{}, mapping, factory, noopPublisher{})

	curKF := frame.NewKeyframe(frame.New(0, time.Time{}, nil), []float32{1}, nil)
	test.That(t, g.InsertKeyframe(curKF), test.ShouldBeNil)
	cur.Set(curKF)

	graphLen := search.GraphLen()
	minVal := 0.2 + float64(graphLen)*0.8/float64(cfg.InitPhaseCount)
	if graphLen < cfg.InitPhaseCount {
		minVal *= 0.7
	}

	// Choose the translation norm so that
	// refFrameScore(dsq, usage=1, cfg.KFDistWeight, cfg.KFUsageWeight) ==
	// minVal exactly: at usage=1 the usage term vanishes, leaving
	// dsq*KFDistWeight^2 == minVal, and curKF's mean inverse depth is 1, so
	// dsq == TranslationNorm^2.
	dsq := minVal / (cfg.KFDistWeight * cfg.KFDistWeight)
	res := collab.TrackResult{
		PointUsage: 1,
		Relative:   posex.Sim3{Rotation: posex.Identity().Rotation, Translation: mgl64.Vec3{math.Sqrt(dsq), 0, 0}, Scale: 1},
	}

	newFrame := frame.New(1, time.Time{}, nil)
	tr.maybeSwitchKeyframe(curKF, newFrame, res)

	test.That(t, factory.calls, test.ShouldEqual, 0)
	test.That(t, cur.Get().ID, test.ShouldEqual, curKF.ID)
}
