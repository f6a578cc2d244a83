// Package frame defines the value types shared across every SLAM thread:
// the immutable captured Frame, its mutable FramePose, the Keyframe that
// extends a Frame with a depth hypothesis, and the Constraint (edge)
// between two keyframes.
//
// Frames are referenced by identity, never copied; the graph and registry
// hold integer ids rather than pointers to the parent frame, breaking the
// pose -> parent-pose -> ... cycle called out in spec.md §9's design notes.
// A Store resolves ids to live frames and reference-counts them so pixel
// buffers are released only once every holder is done.
package frame

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.viam.com/slamcore/posex"
)

// Level is one entry of a Frame's image pyramid: an intensity image plus
// its precomputed horizontal/vertical gradients, the inputs the external
// SE(3)/Sim(3) trackers consume.
type Level struct {
	Width, Height int
	Intensity     *image.Gray
	GradX, GradY  []float32
}

// FramePose is the mutable, pose-bearing record owned by a Frame. It may be
// updated by Optimization; reads observed by Tracking must be internally
// consistent, which callers ensure by holding a posex.ConsistencyLock
// around any read that composes more than one field.
type FramePose struct {
	mu sync.Mutex

	sim               posex.Sim3
	parentID          int64
	hasParent         bool
	registeredToGraph bool
}

// NewFramePose returns a FramePose seeded with the given similarity
// transform, with no tracking parent.
func NewFramePose(sim posex.Sim3) *FramePose {
	return &FramePose{sim: sim}
}

// Sim3 returns the current similarity transform.
func (p *FramePose) Sim3() posex.Sim3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sim
}

// SetSim3 replaces the similarity transform, e.g. after Optimization
// writeback or Mapping's local-frame merge.
func (p *FramePose) SetSim3(sim posex.Sim3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sim = sim
}

// Parent returns the tracking parent frame id and whether one is set.
func (p *FramePose) Parent() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parentID, p.hasParent
}

// SetParent records the tracking parent frame id.
func (p *FramePose) SetParent(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parentID = id
	p.hasParent = true
}

// RegisteredToGraph reports whether this pose's frame has been registered
// into the keyframe graph (i.e. it is itself a keyframe).
func (p *FramePose) RegisteredToGraph() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registeredToGraph
}

// SetRegisteredToGraph marks the pose as belonging to a graph-resident
// keyframe.
func (p *FramePose) SetRegisteredToGraph(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registeredToGraph = v
}

// Frame is an immutable capture plus its mutable pose record. Pixel
// contents never change after construction; multiple components may hold
// a Frame simultaneously via Store's reference counting.
type Frame struct {
	ID        int64
	Timestamp time.Time
	Pyramid   []Level

	Pose *FramePose

	refCount int32
}

// New constructs a Frame with an identity-anchored FramePose. Callers
// typically overwrite the pose immediately with a tracked estimate.
func New(id int64, ts time.Time, pyramid []Level) *Frame {
	return &Frame{
		ID:        id,
		Timestamp: ts,
		Pyramid:   pyramid,
		Pose:      NewFramePose(posex.Identity()),
		refCount:  1,
	}
}

// Base returns the finest pyramid level (level 0), the tracked base image.
func (f *Frame) Base() Level {
	if len(f.Pyramid) == 0 {
		return Level{}
	}
	return f.Pyramid[0]
}

// Retain increments the reference count; call before handing the frame to
// another component that will call Release independently.
func (f *Frame) Retain() {
	atomic.AddInt32(&f.refCount, 1)
}

// Release decrements the reference count. It reports whether this was the
// last reference; callers may use that to drop large pyramid buffers, but
// this implementation lets the garbage collector reclaim them once
// unreferenced, matching the fact that Go has no manual free.
func (f *Frame) Release() bool {
	return atomic.AddInt32(&f.refCount, -1) == 0
}
