// Package graph implements the Keyframe Graph (spec.md §4.1): the shared
// store of keyframes, the multiset of edges between them, and the global
// pose index. Mutations acquire a single writer discipline; readers either
// take a shared lock or copy a snapshot under one, matching the discipline
// in spec.md §5.
package graph

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
)

// Snapshot is a point-in-time, race-free copy of the graph's vertices and
// edges, handed to Optimization at the top of each solve.
type Snapshot struct {
	KeyframeIDs []int
	Poses       []posex.Sim3
	Edges       []frame.Constraint
}

// Graph is the shared keyframe/edge store.
type Graph struct {
	log logging.Logger

	mu         sync.RWMutex
	byID       map[int]*frame.Keyframe
	order      []*frame.Keyframe // insertion order; index i has GraphIndex i
	edges      []frame.Constraint
	totalPoint int64
}

// New returns an empty Graph.
func New(log logging.Logger) *Graph {
	return &Graph{log: log, byID: make(map[int]*frame.Keyframe)}
}

// InsertKeyframe assigns the next monotonically increasing graph index to
// kf and inserts it. Duplicate ids are rejected with ErrDuplicateKeyframe.
func (g *Graph) InsertKeyframe(kf *frame.Keyframe) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := int(kf.ID)
	if _, exists := g.byID[id]; exists {
		return errkind.ErrDuplicateKeyframe
	}

	kf.GraphIndex = len(g.order)
	g.byID[id] = kf
	g.order = append(g.order, kf)
	g.totalPoint += int64(len(kf.InverseDepth))

	g.log.Infow("inserted keyframe", "id", id, "graphIndex", kf.GraphIndex)
	return nil
}

// AddEdge appends an immutable constraint between two keyframes already
// present in the graph. Both endpoints must exist; spec.md §3 invariant 3.
func (g *Graph) AddEdge(c frame.Constraint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if _, ok := g.byID[c.From]; !ok {
		err = multierr.Append(err, errors.Errorf("graph: edge endpoint %d not present", c.From))
	}
	if _, ok := g.byID[c.To]; !ok {
		err = multierr.Append(err, errors.Errorf("graph: edge endpoint %d not present", c.To))
	}
	if err != nil {
		return err
	}
	g.edges = append(g.edges, c)
	g.log.Debugw("added edge", "from", c.From, "to", c.To)
	return nil
}

// Lookup resolves a keyframe id to its Keyframe.
func (g *Graph) Lookup(id int) (*frame.Keyframe, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	kf, ok := g.byID[id]
	return kf, ok
}

// Len returns the number of keyframes in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// EdgeCount returns the number of edges currently in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// TotalPoints returns the aggregate inverse-depth point count across every
// keyframe (§3 aggregate counters).
func (g *Graph) TotalPoints() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totalPoint
}

// SnapshotAllPoses returns the pose of every keyframe in insertion order.
func (g *Graph) SnapshotAllPoses() []posex.Sim3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]posex.Sim3, len(g.order))
	for i, kf := range g.order {
		out[i] = kf.Pose.Sim3()
	}
	return out
}

// Snapshot returns a race-free copy of vertices and edges for Optimization
// to solve against.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]int, len(g.order))
	poses := make([]posex.Sim3, len(g.order))
	for i, kf := range g.order {
		ids[i] = int(kf.ID)
		poses[i] = kf.Pose.Sim3()
	}
	edges := make([]frame.Constraint, len(g.edges))
	copy(edges, g.edges)

	return Snapshot{KeyframeIDs: ids, Poses: poses, Edges: edges}
}

// ForEachKeyframe calls fn for every keyframe in insertion order under a
// shared lock. fn must not call back into the Graph.
func (g *Graph) ForEachKeyframe(fn func(*frame.Keyframe)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, kf := range g.order {
		fn(kf)
	}
}

// ApplyOptimizedPoses writes updated Sim3 poses back into the graph's
// keyframes under the caller-supplied posex.ConsistencyLock, matching the
// exclusive-hold contract of spec.md §5. ids and poses must be the same
// slices Optimization received from Snapshot (or a subset).
func (g *Graph) ApplyOptimizedPoses(lock *posex.ConsistencyLock, ids []int, poses []posex.Sim3) {
	lock.Lock()
	defer lock.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()

	for i, id := range ids {
		if kf, ok := g.byID[id]; ok {
			kf.Pose.SetSim3(poses[i])
		}
	}
}
