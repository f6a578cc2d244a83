// Package reloc implements the Relocalizer (spec.md §4.5): after tracking
// loss, N parallel probe workers race an SE(3) tracker against a shared
// candidate cursor, the first success wins, and stop() is a bounded,
// cooperative, idempotent cancellation.
package reloc

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.viam.com/slamcore/collab"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/workerpool"
)

// State is the Relocalizer's lifecycle state.
type State int

const (
	// Idle is the state before the first Start. A Relocalizer that has
	// Succeeded or Stopped stays in that state until the next Start moves it
	// to Running; it does not return to Idle.
	Idle State = iota
	// Running means probe workers are actively racing.
	Running
	// Succeeded means a probe worker found a good match; Result holds it.
	Succeeded
	// Stopped means Stop() halted the workers before any success.
	Stopped
)

// Result is a successful relocalization: the candidate keyframe and the
// tracker's result against it.
type Result struct {
	Keyframe *frame.Keyframe
	Frame    *frame.Frame
	Track    collab.TrackResult
}

// DefaultMinGoodPerGoodBad is the tunable in the success ratio gate:
// goodCount/(goodCount+badCount) >= SuccessThreshold(DefaultMinGoodPerGoodBad).
const DefaultMinGoodPerGoodBad = 0.8

// SuccessThreshold converts a min-good-per-goodbad tunable into the actual
// success ratio gate. Both the probe loop here and Tracking's
// TakeRelocalizeResult re-verification (§4.7) gate the same relocalization
// notion, so they share this formula rather than risk drifting apart.
func SuccessThreshold(minGood float64) float64 {
	return 1 - 0.75*(1-minGood)
}

// Relocalizer runs the parallel SE(3) probe pool.
type Relocalizer struct {
	log     logging.Logger
	tracker collab.SE3Tracker
	workers int
	minGood float64

	mu    sync.Mutex
	state State
	pool  workerpool.Pool

	cursor  int64
	library []*frame.Keyframe

	current atomic.Pointer[frame.Frame]

	resultOnce sync.Once
	resultCh   chan Result
	result     *Result
}

// New returns a Relocalizer that will launch workers probes with tracker,
// using the default success-ratio gate.
func New(log logging.Logger, tracker collab.SE3Tracker, workers int) *Relocalizer {
	if workers <= 0 {
		workers = 4
	}
	return &Relocalizer{
		log:      log,
		tracker:  tracker,
		workers:  workers,
		minGood:  DefaultMinGoodPerGoodBad,
		state:    Idle,
		resultCh: make(chan Result, 1),
	}
}

// State returns the current lifecycle state.
func (r *Relocalizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start launches N parallel probe workers against library. It is a no-op
// if already Running.
func (r *Relocalizer) Start(library []*frame.Keyframe) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Running {
		return
	}
	r.state = Running
	r.library = library
	r.cursor = -1
	r.resultCh = make(chan Result, 1)
	r.resultOnce = sync.Once{}
	r.result = nil

	r.pool = workerpool.New()
	fns := make([]func(context.Context), r.workers)
	for i := range fns {
		fns[i] = r.probeLoop
	}
	r.pool.AddWorkers(fns...)
}

// UpdateCurrentFrame publishes the most recent query frame; workers pick up
// the latest value on their next iteration.
func (r *Relocalizer) UpdateCurrentFrame(f *frame.Frame) {
	r.current.Store(f)
}

// Stop halts workers cooperatively and idempotently. If a success was
// already recorded, the state remains Succeeded.
func (r *Relocalizer) Stop() {
	r.mu.Lock()
	pool := r.pool
	if r.state == Running {
		r.state = Stopped
	}
	r.mu.Unlock()

	if pool != nil {
		pool.Stop()
	}
}

// WaitResult blocks until a successful result arrives or the timeout
// elapses, reporting whether a result arrived. Stop does not wake it. It is the only time-bounded
// operation in the coordination core (spec.md §5).
func (r *Relocalizer) WaitResult(timeout time.Duration) (Result, bool) {
	r.mu.Lock()
	ch := r.resultCh
	r.mu.Unlock()
	if ch == nil {
		return Result{}, false
	}

	select {
	case res := <-ch:
		return res, true
	case <-time.After(timeout):
		return Result{}, false
	}
}

func (r *Relocalizer) probeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f := r.current.Load()
		if f == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
				continue
			}
		}

		kf := r.nextCandidate()
		if kf == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
				continue
			}
		}

		res := r.tracker.TrackFrame(kf, f, posex.Identity())
		if r.succeeded(res) {
			r.reportSuccess(Result{Keyframe: kf, Frame: f, Track: res})
			return
		}
	}
}

func (r *Relocalizer) nextCandidate() *frame.Keyframe {
	r.mu.Lock()
	lib := r.library
	r.mu.Unlock()
	if len(lib) == 0 {
		return nil
	}
	idx := atomic.AddInt64(&r.cursor, 1) % int64(len(lib))
	return lib[idx]
}

func (r *Relocalizer) succeeded(res collab.TrackResult) bool {
	if !res.TrackingWasGood {
		return false
	}
	total := res.GoodCount + res.BadCount
	if total == 0 {
		return false
	}
	ratio := float64(res.GoodCount) / float64(total)
	return ratio >= SuccessThreshold(r.minGood) && !math.IsNaN(ratio)
}

func (r *Relocalizer) reportSuccess(res Result) {
	r.resultOnce.Do(func() {
		r.mu.Lock()
		r.state = Succeeded
		r.result = &res
		ch := r.resultCh
		r.mu.Unlock()

		r.log.Infow("relocalization succeeded", "keyframeID", res.Keyframe.ID)
		ch <- res

		// Stop the remaining workers now that we've won; Stop() is
		// idempotent so a concurrent caller-initiated Stop is harmless.
		r.mu.Lock()
		pool := r.pool
		r.mu.Unlock()
		if pool != nil {
			go pool.Stop()
		}
	})
}
