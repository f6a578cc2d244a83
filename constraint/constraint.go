// Package constraint implements the Constraint-Search Thread (spec.md
// §4.8): for each new keyframe, it queries Trackable-KF Search for
// candidates, runs Sim(3) tracking in both directions, accepts edges that
// pass a residual and mutual-consistency gate, and periodically signals
// Optimization once enough have accumulated.
package constraint

import (
	"context"
	"sync/atomic"

	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/latch"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/workerpool"
)

// OptimizeSignal is Constraint-Search's view of Optimization: request a
// re-solve once enough edges have accumulated (§4.8 step 4).
type OptimizeSignal interface {
	RequestOptimization()
}

// Params gates edge acceptance.
type Params struct {
	Candidate         candidates.Params
	ResidualThreshold float64
	ConsistencyGate   float64
	BatchSize         int
}

// DefaultParams mirrors the constants used across the teacher's constraint
// tracking pipeline, threading cfg through to the candidate scorer so the
// kf_dist_weight/kf_usage_weight options apply here too.
func DefaultParams(cfg config.Config) Params {
	return Params{
		Candidate:         candidates.DefaultParams(cfg),
		ResidualThreshold: 0.05,
		ConsistencyGate:   0.05,
		BatchSize:         5,
	}
}

// Search is the Constraint-Search Thread's state.
type Search struct {
	log      logging.Logger
	params   Params
	graph    *graph.Graph
	kfSearch *candidates.Search
	sim3     collab.Sim3Tracker
	optimize OptimizeSignal

	queue chan *frame.Keyframe
	pool  workerpool.Pool

	sinceOptimize int64

	fullReConstraintDone atomic.Pointer[latch.Latch]
}

// New returns a Constraint-Search thread.
func New(log logging.Logger, params Params, g *graph.Graph, kfSearch *candidates.Search, sim3 collab.Sim3Tracker, optimize OptimizeSignal) *Search {
	s := &Search{
		log:      log.Named("constraint"),
		params:   params,
		graph:    g,
		kfSearch: kfSearch,
		sim3:     sim3,
		optimize: optimize,
		queue:    make(chan *frame.Keyframe, 32),
	}
	s.fullReConstraintDone.Store(latch.New())
	return s
}

// Start launches the consuming loop.
func (s *Search) Start() {
	s.pool = workerpool.New(s.consumeLoop)
}

// Stop halts the Constraint-Search thread.
func (s *Search) Stop() {
	if s.pool != nil {
		s.pool.Stop()
	}
}

// SubmitNewKeyframe queues kf for candidate search (called by Mapping on
// keyframe creation).
func (s *Search) SubmitNewKeyframe(kf *frame.Keyframe) {
	s.queue <- kf
}

func (s *Search) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kf := <-s.queue:
			s.processKeyframe(kf)
		}
	}
}

func (s *Search) processKeyframe(kf *frame.Keyframe) {
	cands := s.kfSearch.FindCandidates(kf, s.params.Candidate, nil)
	for _, cand := range cands {
		s.tryAddEdge(kf, cand)
	}
}

func (s *Search) tryAddEdge(a, b *frame.Keyframe) {
	fwd := s.sim3.TrackKeyframe(a, b, a.Pose.Sim3().RelativeTo(b.Pose.Sim3()))
	bwd := s.sim3.TrackKeyframe(b, a, b.Pose.Sim3().RelativeTo(a.Pose.Sim3()))

	if fwd.Residual > s.params.ResidualThreshold || bwd.Residual > s.params.ResidualThreshold {
		return
	}
	if !mutuallyConsistent(fwd.Relative, bwd.Relative, s.params.ConsistencyGate) {
		return
	}

	edge := frame.NewConstraint(int(a.ID), int(b.ID), fwd.Relative, nil)
	if err := s.graph.AddEdge(edge); err != nil {
		s.log.Warnw("failed to add verified edge", "error", err)
		return
	}

	if atomic.AddInt64(&s.sinceOptimize, 1) >= int64(s.params.BatchSize) {
		atomic.StoreInt64(&s.sinceOptimize, 0)
		s.optimize.RequestOptimization()
	}
}

// mutuallyConsistent checks that composing the forward and backward
// estimates returns close to identity: fwd(bwd(x)) should equal x.
func mutuallyConsistent(fwd, bwd posex.Sim3, gate float64) bool {
	roundTrip := fwd.Compose(bwd)
	return roundTrip.TranslationNorm() < gate
}

// DoFullReConstraintTrack synchronously revisits every keyframe in the
// graph to densify the edge set, called at shutdown finalization (§4.8).
// Completion is signaled via the latch returned by FullReConstraintDone.
func (s *Search) DoFullReConstraintTrack() {
	done := latch.New()
	s.fullReConstraintDone.Store(done)

	var all []*frame.Keyframe
	s.graph.ForEachKeyframe(func(kf *frame.Keyframe) { all = append(all, kf) })
	for _, kf := range all {
		s.processKeyframe(kf)
	}

	done.Signal()
}

// FullReConstraintDone returns the latch most recently armed by
// DoFullReConstraintTrack.
func (s *Search) FullReConstraintDone() *latch.Latch {
	return s.fullReConstraintDone.Load()
}
