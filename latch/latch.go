// Package latch implements a one-shot, idempotent completion signal used to
// bridge asynchronous worker threads back to a synchronous caller, the way
// finalize() in the SLAM coordination core waits on the completion of full
// constraint search, final optimization, and merge.
package latch

import "sync"

// Latch is a one-shot signal. Signal may be called any number of times;
// only the first has an effect. Wait blocks until Signal has been called.
type Latch struct {
	once sync.Once
	done chan struct{}
	init sync.Once
}

// New returns a ready-to-use Latch.
func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

func (l *Latch) ensure() {
	l.init.Do(func() {
		if l.done == nil {
			l.done = make(chan struct{})
		}
	})
}

// Signal marks the latch as complete. Idempotent.
func (l *Latch) Signal() {
	l.ensure()
	l.once.Do(func() { close(l.done) })
}

// Done returns a channel closed when Signal has been called.
func (l *Latch) Done() <-chan struct{} {
	l.ensure()
	return l.done
}

// Wait blocks until Signal has been called.
func (l *Latch) Wait() {
	<-l.Done()
}

// Signaled reports whether Signal has already been called, without blocking.
func (l *Latch) Signaled() bool {
	select {
	case <-l.Done():
		return true
	default:
		return false
	}
}
