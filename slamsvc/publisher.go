package slamsvc

import (
	"context"
	"sync/atomic"

	"go.viam.com/slamcore/errkind"
	"go.viam.com/slamcore/frame"
	"go.viam.com/slamcore/logging"
	"go.viam.com/slamcore/posex"
	"go.viam.com/slamcore/workerpool"
)

// Publisher implements both tracking.Publisher and mapping.Publisher: every
// call enqueues a closure onto a bounded channel drained by one goroutine,
// so Tracking's hot path (spec.md §5) never blocks on a slow Sink.
type Publisher struct {
	log  logging.Logger
	sink Sink

	events  chan func()
	pool    workerpool.Pool
	stopped atomic.Bool
}

// NewPublisher returns a Publisher that will fan events out to sink once
// Start is called.
func NewPublisher(log logging.Logger, sink Sink) *Publisher {
	return &Publisher{
		log:    log.Named("publisher"),
		sink:   sink,
		events: make(chan func(), 256),
	}
}

// Start launches the drain goroutine.
func (p *Publisher) Start() {
	p.pool = workerpool.New(p.drainLoop)
}

// Stop halts the drain goroutine; publishes after Stop are dropped.
func (p *Publisher) Stop() {
	p.stopped.Store(true)
	if p.pool != nil {
		p.pool.Stop()
	}
}

func (p *Publisher) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.events:
			fn()
		}
	}
}

func (p *Publisher) enqueue(fn func()) {
	if p.stopped.Load() {
		p.log.Warnw("dropping publish after shutdown", "error", errkind.ErrShutdownInProgress)
		return
	}
	select {
	case p.events <- fn:
	default:
		p.log.Warnw("publish queue full, dropping event")
	}
}

// PublishTrackedFrame implements tracking.Publisher.
func (p *Publisher) PublishTrackedFrame(frameID int64, pose posex.Sim3) {
	p.enqueue(func() { p.sink.TrackedFrame(frameID, pose) })
}

// PublishPose implements tracking.Publisher.
func (p *Publisher) PublishPose(pose posex.Sim3) {
	p.enqueue(func() { p.sink.Pose(pose) })
}

// PublishKeyframe implements mapping.Publisher.
func (p *Publisher) PublishKeyframe(kf *frame.Keyframe) {
	p.enqueue(func() { p.sink.Keyframe(kf) })
}

// PublishDepthImage implements mapping.Publisher.
func (p *Publisher) PublishDepthImage(kf *frame.Keyframe) {
	p.enqueue(func() { p.sink.DepthImage(kf) })
}
