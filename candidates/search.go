// Package candidates implements Trackable-KF Search (spec.md §4.4): given a
// query keyframe, proposes a small ordered set of other keyframes likely
// trackable from it, for constraint creation, keyframe re-activation, or
// relocalization.
package candidates

import (
	"math"
	"sort"

	"go.viam.com/slamcore/config"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/graph"
)

// AppearanceIndex is the optional plug-in loop-detection collaborator named
// in spec.md §6. An absent implementation is a no-op (see NoopAppearance).
type AppearanceIndex interface {
	Add(id int, descriptors []byte) error
	Query(descriptors []byte) (id int, found bool, err error)
}

// NoopAppearance is the default AppearanceIndex: it never adds or matches
// anything, per the Design Note in spec.md §9.
type NoopAppearance struct{}

func (NoopAppearance) Add(int, []byte) error          { return nil }
func (NoopAppearance) Query([]byte) (int, bool, error) { return 0, false, nil }

// Params configures a search. ClosenessTh is resolved per spec.md §9's open
// question as a float64 multiplier in [0, ∞), not a bool.
type Params struct {
	ClosenessTh       float64
	CheckBothScales   bool
	IncludeAppearance bool
	DistWeight        float64
	UsageWeight       float64

	// BaseDistance and MaxAngle are the fixed geometric gates before
	// ClosenessTh scaling.
	BaseDistance float64
	MaxAngle     float64
}

// DefaultParams mirrors the geometric gates scattered through the teacher
// tracking pipeline's candidate search, and takes DistWeight/UsageWeight
// from cfg (spec.md §6's kf_dist_weight/kf_usage_weight) rather than
// duplicating them as literals.
func DefaultParams(cfg config.Config) Params {
	return Params{
		ClosenessTh:  1.0,
		BaseDistance: 1.5,
		MaxAngle:     60 * math.Pi / 180,
		DistWeight:   cfg.KFDistWeight,
		UsageWeight:  cfg.KFUsageWeight,
	}
}

// Search runs Trackable-KF Search queries against a Graph.
type Search struct {
	graph      *graph.Graph
	appearance AppearanceIndex
}

// New returns a Search bound to g. appearance may be nil, in which case a
// NoopAppearance is used.
func New(g *graph.Graph, appearance AppearanceIndex) *Search {
	if appearance == nil {
		appearance = NoopAppearance{}
	}
	return &Search{graph: g, appearance: appearance}
}

type scored struct {
	kf    *frame.Keyframe
	score float64
}

// GraphLen returns the number of keyframes currently in the bound graph,
// used by Tracking's init-phase and keyframe-switch gating.
func (s *Search) GraphLen() int {
	return s.graph.Len()
}

// FindCandidates returns keyframes likely trackable from kf, ordered by
// decreasing likelihood (ascending score). kf itself is never returned. An
// empty graph returns an empty, non-nil slice.
func (s *Search) FindCandidates(kf *frame.Keyframe, p Params, descriptors []byte) []*frame.Keyframe {
	scoredOut := s.findCandidatesScored(kf, p, descriptors)
	result := make([]*frame.Keyframe, len(scoredOut))
	for i, sc := range scoredOut {
		result[i] = sc.kf
	}
	return result
}

func (s *Search) findCandidatesScored(kf *frame.Keyframe, p Params, descriptors []byte) []scored {
	var out []scored

	s.graph.ForEachKeyframe(func(k *frame.Keyframe) {
		if k.ID == kf.ID {
			return
		}
		if !s.overlaps(kf, k, p) {
			return
		}
		out = append(out, scored{kf: k, score: score(kf, k, p)})
	})

	if p.IncludeAppearance {
		if id, found, err := s.appearance.Query(descriptors); err == nil && found {
			if k, ok := s.graph.Lookup(id); ok && k.ID != kf.ID {
				out = mergeAppearanceHit(out, k)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].kf.GraphIndex < out[j].kf.GraphIndex
	})

	return out
}

func mergeAppearanceHit(out []scored, k *frame.Keyframe) []scored {
	for _, sc := range out {
		if sc.kf.ID == k.ID {
			return out
		}
	}
	// An appearance match is treated as maximally likely: score 0.
	return append(out, scored{kf: k, score: 0})
}

func (s *Search) overlaps(query, other *frame.Keyframe, p Params) bool {
	if within(query, other, p) {
		return true
	}
	if p.CheckBothScales && within(other, query, p) {
		return true
	}
	return false
}

func within(a, b *frame.Keyframe, p Params) bool {
	rel := a.Pose.Sim3().RelativeTo(b.Pose.Sim3())
	dist := rel.TranslationNorm()
	angle := a.Pose.Sim3().ViewingAngle(b.Pose.Sim3())
	return dist < p.BaseDistance*p.ClosenessTh && angle < p.MaxAngle
}

func score(query, other *frame.Keyframe, p Params) float64 {
	rel := query.Pose.Sim3().RelativeTo(other.Pose.Sim3())
	d := rel.TranslationNorm()
	u := other.PointUsage
	return d*d*p.DistWeight*p.DistWeight + (1-u)*(1-u)*p.UsageWeight*p.UsageWeight
}

// FindRePositionCandidate returns the single best-scoring keyframe within
// maxScore, or none. Used by Tracking's changeKeyframe (§4.6).
func (s *Search) FindRePositionCandidate(kf *frame.Keyframe, p Params, maxScore float64, descriptors []byte) (*frame.Keyframe, bool) {
	cands := s.findCandidatesScored(kf, p, descriptors)
	if len(cands) == 0 {
		return nil, false
	}
	best := cands[0]
	if best.score > maxScore {
		return nil, false
	}
	return best.kf, true
}
