// Package optimize implements the Optimization Thread (spec.md §4.9): it
// loops while signaled, takes a snapshot of the keyframe graph, runs the
// nonlinear pose-graph solver, writes updated Sim(3) poses back under the
// pose-consistency lock, and notifies Mapping to merge.
package optimize

import (
	"context"
	"sync/atomic"

	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/latch"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/workerpool"
)

// MergeSink is Optimization's view of Mapping: apply the just-written
// poses into the current keyframe's local frame of reference (§4.7/§4.9).
type MergeSink interface {
	ApplyOptimizationMerge()
}

// Optimizer is the Optimization Thread's state.
type Optimizer struct {
	log     logging.Logger
	graph   *graph.Graph
	solver  collab.PoseGraphSolver
	consist *posex.ConsistencyLock
	mapping MergeSink

	trigger chan struct{}
	pool    workerpool.Pool

	finalDone atomic.Pointer[latch.Latch]
}

// New returns an Optimization thread.
func New(log logging.Logger, g *graph.Graph, solver collab.PoseGraphSolver, consist *posex.ConsistencyLock, mapping MergeSink) *Optimizer {
	o := &Optimizer{
		log:     log.Named("optimize"),
		graph:   g,
		solver:  solver,
		consist: consist,
		mapping: mapping,
		trigger: make(chan struct{}, 1),
	}
	o.finalDone.Store(latch.New())
	return o
}

// Start launches the consuming loop.
func (o *Optimizer) Start() {
	o.pool = workerpool.New(o.consumeLoop)
}

// Stop halts the Optimization thread.
func (o *Optimizer) Stop() {
	if o.pool != nil {
		o.pool.Stop()
	}
}

// RequestOptimization signals the thread to run another pass. Multiple
// pending signals collapse into one, matching the teacher's buffered
// trigger-channel idiom for coalescing bursty notifications.
func (o *Optimizer) RequestOptimization() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

func (o *Optimizer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.trigger:
			o.runOnce()
		}
	}
}

// runOnce reports whether it actually wrote poses back and notified
// Mapping's merge, so callers that wait on the merge latch know when to
// skip that wait instead of blocking on a signal that will never come.
func (o *Optimizer) runOnce() bool {
	snap := o.graph.Snapshot()
	if len(snap.KeyframeIDs) == 0 {
		return false
	}

	updated, err := o.solver.Optimize(snap.KeyframeIDs, snap.Poses, snap.Edges)
	if err != nil {
		o.log.Warnw("pose-graph solve failed", "error", err)
		return false
	}
	if !allFinite(updated) {
		o.log.Warnw("pose-graph solve diverged, skipping merge", "error", errkind.ErrSolverDiverged)
		return false
	}

	o.graph.ApplyOptimizedPoses(o.consist, snap.KeyframeIDs, updated)
	o.mapping.ApplyOptimizationMerge()
	return true
}

func allFinite(poses []posex.Sim3) bool {
	for _, p := range poses {
		if !p.Finite() {
			return false
		}
	}
	return true
}

// DoFinalOptimization forces one synchronous pass, used by Finalize (§4.9,
// S5). Completion is signaled via the latch from FinalOptimizationDone. It
// reports whether the pass actually merged into Mapping (§7's
// solve-failed/diverged paths skip the merge and continue) so Finalize
// knows whether to wait on Mapping's merge latch.
func (o *Optimizer) DoFinalOptimization() bool {
	done := latch.New()
	o.finalDone.Store(done)
	merged := o.runOnce()
	done.Signal()
	return merged
}

// FinalOptimizationDone returns the latch most recently armed by
// DoFinalOptimization.
func (o *Optimizer) FinalOptimizationDone() *latch.Latch {
	return o.finalDone.Load()
}
