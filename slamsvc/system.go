package slamsvc

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/slamcore/candidates"
	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/constraint"
	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
	"go.viam.com/slamcore/latch"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/mapping"
	"go.viam.com/slamcore/optimize"
	"go.viam.com/slamcore/poselog"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/reloc"
	"go.viam.com/slamcore/tracking"
)

// System is the top-level SLAM coordination core (spec.md §2): it owns the
// shared state and every thread, and is the only type external callers
// touch.
type System struct {
	log   logging.Logger
	cfg   config.Config
	coll  Collaborators

	store    *frame.Store
	graph    *graph.Graph
	registry *poselog.Registry
	cur      *curkf.Cell
	consist  *posex.ConsistencyLock
	search   *candidates.Search

	publisher   *Publisher
	relocalizer *reloc.Relocalizer
	tracking    *tracking.Tracker
	mapping     *mapping.Mapping
	constraint  *constraint.Search
	optimize    *optimize.Optimizer

	mu          sync.Mutex
	initialized bool
	started     bool
	stopped     bool

	finalizeOnce sync.Once
	finalized    *latch.Latch
}

// New wires a full System from its collaborators. It is not started until
// Start is called, and no frame may be tracked until Initialize (or the
// first TrackFrame's lazy-init recovery) has seeded the map.
func New(log logging.Logger, cfg config.Config, coll Collaborators) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if coll.Sink == nil {
		return nil, errors.New("slamsvc: Sink is required")
	}

	g := graph.New(log)
	registry := poselog.New()
	cur := curkf.New()
	consist := &posex.ConsistencyLock{}
	search := candidates.New(g, coll.Appearance)
	publisher := NewPublisher(log, coll.Sink)
	relocalizer := reloc.New(log, coll.SE3, cfg.RelocalizeThreads)

	trackingProxy := &trackingHandoffProxy{}
	constraintProxy := &constraintSinkProxy{}

	mp := mapping.New(log, cfg, coll.Depth, g, cur, relocalizer, trackingProxy, constraintProxy, publisher)
	opt := optimize.New(log, g, coll.Solver, consist, mp)
	cs := constraint.New(log, constraint.DefaultParams(cfg), g, search, coll.Sim3, opt)
	constraintProxy.target.Store(cs)
	tr := tracking.New(log, cfg, cur, registry, search, coll.SE3, consist, mp, mp, publisher)
	trackingProxy.target.Store(tr)

	return &System{
		log:         log.Named("slamsvc"),
		cfg:         cfg,
		coll:        coll,
		store:       frame.NewStore(),
		graph:       g,
		registry:    registry,
		cur:         cur,
		consist:     consist,
		search:      search,
		publisher:   publisher,
		relocalizer: relocalizer,
		tracking:    tr,
		mapping:     mp,
		constraint:  cs,
		optimize:    opt,
		finalized:   latch.New(),
	}, nil
}

// Start launches the background threads: Mapping and the event Publisher
// always; Constraint-Search and Optimization only when cfg.SLAMEnabled is
// true (spec.md §6).
func (s *System) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.publisher.Start()
	s.mapping.Start()
	if s.cfg.SLAMEnabled {
		s.constraint.Start()
		s.optimize.Start()
	}
}

// Stop halts every background thread. Idempotent.
func (s *System) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.constraint.Stop()
	s.optimize.Stop()
	s.mapping.Stop()
	s.relocalizer.Stop()
	s.publisher.Stop()
}

// Initialize seeds the map from f using the collaborator's random depth
// initialization and makes it the current keyframe (spec.md §4.1, §8
// invariant 5). It is an error to call it twice; use FullReset to start
// over.
func (s *System) Initialize(f *frame.Frame) error {
	return s.initialize(f, nil)
}

// InitializeWithSeed is Initialize's ground-truth-depth variant, used when
// an external depth sensor or offline reconstruction seeds the first
// keyframe instead of the random initializer.
func (s *System) InitializeWithSeed(f *frame.Frame, seedDepth []float32) error {
	return s.initialize(f, seedDepth)
}

func (s *System) initialize(f *frame.Frame, seedDepth []float32) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return errkind.ErrAlreadyInitialized
	}
	s.initialized = true
	s.mu.Unlock()

	kf := frame.NewKeyframe(f, nil, nil)
	if seedDepth != nil {
		s.coll.Depth.GTDepthInit(kf, seedDepth)
	} else {
		s.coll.Depth.RandomInit(kf)
	}

	if err := s.graph.InsertKeyframe(kf); err != nil {
		return err
	}
	f.Pose.SetRegisteredToGraph(true)
	s.cur.Set(kf)
	return s.registry.Append(f.ID, f.Pose)
}

// TrackFrame runs the per-frame pipeline (spec.md §4.6). If the map has not
// yet been initialized, f is consumed as the seed keyframe instead of being
// tracked, matching the lazy-init recovery named in spec.md §7.
func (s *System) TrackFrame(f *frame.Frame, blockUntilMapped bool) error {
	err := s.tracking.TrackFrame(f, blockUntilMapped)
	if errors.Is(err, errkind.ErrNotInitialized) {
		return s.Initialize(f)
	}
	return err
}

// Finalize synchronously drains the pipeline for a clean shutdown (spec.md
// §4.8/§4.9, S5): a full constraint-search pass over every keyframe, a
// final pose-graph optimization, and Mapping's merge of the result. It is
// idempotent; concurrent and repeat callers all block until the first call
// completes.
func (s *System) Finalize() {
	s.finalizeOnce.Do(func() {
		s.constraint.DoFullReConstraintTrack()
		s.constraint.FullReConstraintDone().Wait()

		if s.graph.Len() > 0 {
			mergeDone := s.mapping.OptimizationMerged()
			merged := s.optimize.DoFinalOptimization()
			s.optimize.FinalOptimizationDone().Wait()
			if merged {
				mergeDone.Wait()
			}
		}

		s.finalized.Signal()
	})
	s.finalized.Wait()
}

// FullReset stops this System and returns a freshly wired one sharing the
// same collaborators and output Sink (spec.md §6), with an empty graph and
// registry.
func (s *System) FullReset() (*System, error) {
	s.Stop()
	return New(s.log, s.cfg, s.coll)
}

// TrackingGood reports whether Tracking currently has a usable pose.
func (s *System) TrackingGood() bool {
	return s.tracking.TrackingGood()
}

// SetManualTrackingLoss requests that the next tracked frame be treated as
// lost, per spec.md §4.6 step 5.
func (s *System) SetManualTrackingLoss() {
	s.tracking.SetManualTrackingLoss()
}

// KeyframeCount returns the number of keyframes currently in the graph.
func (s *System) KeyframeCount() int {
	return s.graph.Len()
}
