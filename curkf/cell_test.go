package curkf_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slamcore/curkf"
	"go.viam.com/slamcore/frame"
)

func TestCellStartsEmpty(t *testing.T) {
	c := curkf.New()
	test.That(t, c.Get(), test.ShouldBeNil)
}

func TestSetThenGetObservesNewValue(t *testing.T) {
	c := curkf.New()
	kf := frame.NewKeyframe(frame.New(1, time.Time{}, nil), nil, nil)
	c.Set(kf)
	test.That(t, c.Get(), test.ShouldEqual, kf)
}
