// Package logging provides the structured logger used throughout the SLAM
// coordination core. It wraps zap the way go.viam.com/rdk/logging does,
// exposing a small sugared interface so callers never depend on zap types
// directly.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger interface every component takes at
// construction time.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Named(name string) Logger
}

type impl struct {
	sugar *zap.SugaredLogger
}

func newConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	return cfg
}

// New returns a new Logger named after the component that owns it, in the
// same spirit as go.viam.com/rdk/logging.NewLogger("component-name").
func New(name string) Logger {
	cfg := newConfig()
	zl, err := cfg.Build()
	if err != nil {
		// Config is entirely static above; only fails on malformed encoder
		// settings, which would be a programming error.
		panic(err)
	}
	return &impl{sugar: zl.Sugar().Named(name)}
}

// NewTest returns a logger suitable for unit tests: debug level, no
// buffering surprises.
func NewTest(name string) Logger {
	cfg := newConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &impl{sugar: zl.Sugar().Named(name)}
}

func (l *impl) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *impl) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *impl) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *impl) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *impl) Named(name string) Logger {
	return &impl{sugar: l.sugar.Named(name)}
}
