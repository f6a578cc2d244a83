// Package testsource provides a synthetic collab.FrameSource for tests and
// demos: monotonically increasing frame ids and timestamps over a fixed
// image size, with no real pixel content.
package testsource

import (
	"image"
	"time"

	"go.viam.com/slamcore/frame"
)

// Source generates a bounded or unbounded sequence of empty frames.
type Source struct {
	width, height int
	interval      time.Duration
	start         time.Time

	next  int64
	limit int64 // 0 means unbounded
}

// New returns a Source producing frames of the given pyramid base size,
// spaced interval apart starting at start. A limit of 0 means unbounded.
func New(width, height int, start time.Time, interval time.Duration, limit int64) *Source {
	return &Source{width: width, height: height, interval: interval, start: start, limit: limit}
}

// Next implements collab.FrameSource.
func (s *Source) Next() (*frame.Frame, bool) {
	if s.limit > 0 && s.next >= s.limit {
		return nil, false
	}
	id := s.next
	s.next++

	ts := s.start.Add(time.Duration(id) * s.interval)
	level := frame.Level{
		Width:     s.width,
		Height:    s.height,
		Intensity: image.NewGray(image.Rect(0, 0, s.width, s.height)),
		GradX:     make([]float32, s.width*s.height),
		GradY:     make([]float32, s.width*s.height),
	}
	return frame.New(id, ts, []frame.Level{level}), true
}
