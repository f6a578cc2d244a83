// Package mapping implements the Mapping Thread (spec.md §4.7): it
// consumes tracked frames, refines the current keyframe's depth map or
// promotes a frame to a new keyframe, forwards frames to the Relocalizer
// while tracking is bad, and merges Optimization's writeback into the
// current keyframe's local frame of reference.
package mapping

import (
	"context"
	"sync/atomic"
	"time"

	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/latch"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/reloc"
	"go.viam.com/slamcore/workerpool"
)

// TrackingHandoff is Mapping's view of Tracking: the relocalization
// success callback (§4.7 second paragraph).
type TrackingHandoff interface {
	TakeRelocalizeResult(candidateKF *frame.Keyframe, f *frame.Frame, probe collab.TrackResult) error
}

// Publisher fans keyframe and depth-image events out to external
// consumers (spec.md §6).
type Publisher interface {
	PublishKeyframe(kf *frame.Keyframe)
	PublishDepthImage(kf *frame.Keyframe)
}

// ConstraintSink is Constraint-Search's queue, notified on every new
// keyframe (§4.7 -> §4.8).
type ConstraintSink interface {
	SubmitNewKeyframe(kf *frame.Keyframe)
}

type mapRequest struct {
	f    *frame.Frame
	done chan struct{}
}

// Mapping is the Mapping Thread's state.
type Mapping struct {
	log        logging.Logger
	cfg        config.Config
	depth      collab.DepthMap
	graph      *graph.Graph
	cur        *curkf.Cell
	relocalize *reloc.Relocalizer
	tracking   TrackingHandoff
	constraint ConstraintSink
	pub        Publisher

	queue chan mapRequest
	pool  workerpool.Pool

	mergedLatch atomic.Pointer[latch.Latch]
}

// New returns a Mapping thread. It is not started until Start is called.
func New(
	log logging.Logger,
	cfg config.Config,
	depth collab.DepthMap,
	g *graph.Graph,
	cur *curkf.Cell,
	relocalize *reloc.Relocalizer,
	tracking TrackingHandoff,
	constraint ConstraintSink,
	pub Publisher,
) *Mapping {
	m := &Mapping{
		log:        log.Named("mapping"),
		cfg:        cfg,
		depth:      depth,
		graph:      g,
		cur:        cur,
		relocalize: relocalize,
		tracking:   tracking,
		constraint: constraint,
		pub:        pub,
		queue:      make(chan mapRequest, 64),
	}
	m.mergedLatch.Store(latch.New())
	return m
}

// Start launches the consuming loop and the relocalization watcher.
func (m *Mapping) Start() {
	m.pool = workerpool.New(m.consumeLoop, m.relocWatchLoop)
}

// Stop halts the Mapping thread's background loops.
func (m *Mapping) Stop() {
	if m.pool != nil {
		m.pool.Stop()
	}
}

// SubmitTrackedFrame enqueues a tracked (non-keyframe) frame for depth
// refinement. If blockUntilMapped, it waits until the frame is processed.
func (m *Mapping) SubmitTrackedFrame(f *frame.Frame, blockUntilMapped bool) {
	req := mapRequest{f: f}
	if blockUntilMapped {
		req.done = make(chan struct{})
	}
	m.queue <- req
	if blockUntilMapped {
		<-req.done
	}
}

// SubmitToRelocalizer hands a frame to the Relocalizer while tracking is
// bad, starting the pool if it is not already running.
func (m *Mapping) SubmitToRelocalizer(f *frame.Frame) {
	if m.relocalize.State() != reloc.Running {
		var library []*frame.Keyframe
		m.graph.ForEachKeyframe(func(kf *frame.Keyframe) { library = append(library, kf) })
		m.relocalize.Start(library)
	}
	m.relocalize.UpdateCurrentFrame(f)
}

func (m *Mapping) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.queue:
			m.handleTrackedFrame(req.f)
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

func (m *Mapping) handleTrackedFrame(f *frame.Frame) {
	curKF := m.cur.Get()
	if curKF == nil {
		return
	}
	m.depth.UpdateKeyFrame(curKF, f)
	curKF.IncMapped()
	if m.cfg.DisplayDepthMap {
		m.pub.PublishDepthImage(curKF)
	}
}

// CreateKeyframe implements tracking.KeyframeFactory: it propagates depth
// from the previous keyframe, materializes and registers the new keyframe,
// and notifies Constraint-Search. It runs synchronously on the calling
// (Tracking) goroutine so that Tracking's changeKeyframe postcondition
// (spec.md §8 invariant 4) holds the instant it returns.
func (m *Mapping) CreateKeyframe(from *frame.Keyframe, newFrame *frame.Frame) (*frame.Keyframe, error) {
	size := 0
	if from != nil {
		size = len(from.InverseDepth)
	}
	kf := frame.NewKeyframe(newFrame, make([]float32, size), make([]float32, size))
	m.depth.CreateKeyFrame(kf, from, newFrame)

	if err := m.graph.InsertKeyframe(kf); err != nil {
		return nil, err
	}

	if from != nil {
		edge := frame.NewConstraint(int(from.ID), int(kf.ID), from.Pose.Sim3().RelativeTo(kf.Pose.Sim3()), nil)
		if err := m.graph.AddEdge(edge); err != nil {
			m.log.Warnw("failed to add tracking edge for new keyframe", "error", err)
		}
	}

	m.constraint.SubmitNewKeyframe(kf)

	if m.cfg.ContinuousPCOutput {
		m.pub.PublishKeyframe(kf)
	}
	return kf, nil
}

// ApplyOptimizationMerge is Optimization's callback after it has written
// updated poses back into the graph (§4.9): it flags the current keyframe
// so Tracking re-imports its reference on the next frame, and signals the
// "optimizationUpdateMerged" completion used by Finalize (S5).
func (m *Mapping) ApplyOptimizationMerge() {
	if kf := m.cur.Get(); kf != nil {
		kf.MarkDepthUpdated()
	}
	old := m.mergedLatch.Swap(latch.New())
	old.Signal()
}

// OptimizationMerged returns a latch signaled the next time
// ApplyOptimizationMerge runs; Finalize waits on it.
func (m *Mapping) OptimizationMerged() *latch.Latch {
	return m.mergedLatch.Load()
}

func (m *Mapping) relocWatchLoop(ctx context.Context) {
	const pollInterval = 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, ok := m.relocalize.WaitResult(pollInterval)
		if !ok {
			continue
		}
		if err := m.tracking.TakeRelocalizeResult(res.Keyframe, res.Frame, res.Track); err != nil {
			m.log.Warnw("relocalization result rejected", "error", err)
		}
	}
}
