package latch_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slamcore/latch"
)

func TestSignalUnblocksWait(t *testing.T) {
	l := latch.New()
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	case <-time.After(10 * time.Millisecond):
	}

	l.Signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Signal")
	}
}

func TestSignalIsIdempotent(t *testing.T) {
	l := latch.New()
	l.Signal()
	l.Signal()
	test.That(t, l.Signaled(), test.ShouldBeTrue)
}

func TestSignaledBeforeSignal(t *testing.T) {
	l := latch.New()
	test.That(t, l.Signaled(), test.ShouldBeFalse)
}
