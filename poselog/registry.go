// Package poselog implements the Frame Pose Registry (spec.md §4.2): an
// append-only, strictly-increasing-by-id log of every successfully tracked
// frame's pose.
package poselog

import (
	"sync"

	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
)

// Entry is one registry record.
type Entry struct {
	FrameID int64
	Pose    *frame.FramePose
}

// Registry is the append-only, mutex-guarded pose log.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Append adds a pose to the log. The frame id must exceed the id of the
// last appended entry; violation returns ErrOutOfOrderPose (fatal per
// spec.md §7).
func (r *Registry) Append(frameID int64, pose *frame.FramePose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.entries); n > 0 && frameID <= r.entries[n-1].FrameID {
		return errkind.ErrOutOfOrderPose
	}
	r.entries = append(r.entries, Entry{FrameID: frameID, Pose: pose})
	return nil
}

// Snapshot copies the backing sequence.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Last returns the most recently appended entry, the source of Tracking's
// initial-guess pose composition.
func (r *Registry) Last() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Len returns the number of entries currently logged.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
