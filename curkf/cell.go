// Package curkf implements the Current-Keyframe Cell (spec.md §4.3): a
// single-slot, single-writer/many-reader handoff of the active reference
// keyframe. Get never blocks and never observes an empty cell once
// initialized; Set is atomic and does not retroactively affect in-flight
// readers that already captured the old value, matching the Design Note in
// spec.md §9 recommending a lock-free atomic reference.
package curkf

import (
	"sync/atomic"

	"go.viam.com/slamcore/frame"
)

// Cell is the current-keyframe handoff.
type Cell struct {
	v atomic.Pointer[frame.Keyframe]
}

// New returns an empty cell. Callers must Set it during Initialize before
// any trackFrame call, per spec.md §8 invariant 5.
func New() *Cell {
	return &Cell{}
}

// Get returns the active reference keyframe, or nil if never initialized.
func (c *Cell) Get() *frame.Keyframe {
	return c.v.Load()
}

// Set atomically replaces the active reference keyframe. Any Get called
// after Set returns observes the new value; trackers that already read the
// old value via Get before this call complete their in-flight work against
// it, per spec.md §4.3's contract.
func (c *Cell) Set(kf *frame.Keyframe) {
	c.v.Store(kf)
}
