package graph_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
)

func newKeyframe(id int64) *frame.Keyframe {
	f := frame.New(id, time.Time{}, nil)
	return frame.NewKeyframe(f, nil, nil)
}

func TestInsertKeyframeAssignsGraphIndex(t *testing.T) {
	g := graph.New(logging.NewTest("graph"))
	kf0 := newKeyframe(1)
	kf1 := newKeyframe(2)

	test.That(t, g.InsertKeyframe(kf0), test.ShouldBeNil)
	test.That(t, g.InsertKeyframe(kf1), test.ShouldBeNil)
	test.That(t, kf0.GraphIndex, test.ShouldEqual, 0)
	test.That(t, kf1.GraphIndex, test.ShouldEqual, 1)
	test.That(t, g.Len(), test.ShouldEqual, 2)
}

func TestInsertDuplicateKeyframeErrors(t *testing.T) {
	g := graph.New(logging.NewTest("graph"))
	kf := newKeyframe(1)
	test.That(t, g.InsertKeyframe(kf), test.ShouldBeNil)
	test.That(t, g.InsertKeyframe(kf), test.ShouldBeError, errkind.ErrDuplicateKeyframe)
}

func TestAddEdgeRequiresBothEndpoints(t *testing.T) {
	g := graph.New(logging.NewTest("graph"))
	kf0 := newKeyframe(1)
	test.That(t, g.InsertKeyframe(kf0), test.ShouldBeNil)

	err := g.AddEdge(frame.NewConstraint(1, 99, posex.Identity(), nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestApplyOptimizedPosesWritesUnderLock(t *testing.T) {
	g := graph.New(logging.NewTest("graph"))
	kf0 := newKeyframe(1)
	kf1 := newKeyframe(2)
	test.That(t, g.InsertKeyframe(kf0), test.ShouldBeNil)
	test.That(t, g.InsertKeyframe(kf1), test.ShouldBeNil)

	newPose := posex.Sim3{Rotation: posex.Identity().Rotation, Translation: kf1.Pose.Sim3().Translation, Scale: 2}
	consist := &posex.ConsistencyLock{}
	g.ApplyOptimizedPoses(consist, []int{1}, []posex.Sim3{newPose})

	test.That(t, kf0.Pose.Sim3().Scale, test.ShouldEqual, newPose.Scale)
	test.That(t, kf1.Pose.Sim3().Scale, test.ShouldEqual, 1.0)
}

func TestSnapshotIsRaceFreeCopy(t *testing.T) {
	g := graph.New(logging.NewTest("graph"))
	kf0 := newKeyframe(1)
	test.That(t, g.InsertKeyframe(kf0), test.ShouldBeNil)
	test.That(t, g.AddEdge(frame.NewConstraint(1, 1, posex.Identity(), nil)), test.ShouldBeNil)

	snap := g.Snapshot()
	test.That(t, snap.KeyframeIDs, test.ShouldResemble, []int{1})
	test.That(t, len(snap.Edges), test.ShouldEqual, 1)
}
