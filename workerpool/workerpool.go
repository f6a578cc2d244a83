// Package workerpool runs the SLAM core's background threads as a
// collection of cooperatively cancellable goroutines. It is adapted from
// go.viam.com/rdk/utils.StoppableWorkers: each of the mapping,
// constraint-search, and optimization threads owns one, and the
// Relocalizer owns one sized to its configured probe count.
package workerpool

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// Pool is a group of goroutines that share a cancellation context and can
// be stopped together, waiting for every member to exit.
type Pool interface {
	// AddWorkers starts a goroutine per function. Calling this after Stop
	// returns immediately without starting anything.
	AddWorkers(fns ...func(context.Context))
	// Stop cancels the shared context and waits for every worker to exit.
	Stop()
	// Context returns the context workers should select on to notice
	// cancellation.
	Context() context.Context
}

type pool struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  func()
	workers sync.WaitGroup
}

// New starts the given functions immediately, each in its own goroutine.
func New(fns ...func(context.Context)) Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{ctx: ctx, cancel: cancel}
	p.AddWorkers(fns...)
	return p
}

func (p *pool) AddWorkers(fns ...func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	p.workers.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		goutils.PanicCapturingGo(func() {
			defer p.workers.Done()
			fn(p.ctx)
		})
	}
}

func (p *pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()
	p.workers.Wait()
}

func (p *pool) Context() context.Context {
	return p.ctx
}
