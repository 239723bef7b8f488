// Package zap adapts go.uber.org/zap to the logging.LoggerFactory interface
// consumed throughout this module.
package zap

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// Factory produces scoped leveled loggers backed by a shared zap logger.
// The scope is attached as a "scope" field on every entry.
type Factory struct {
	base *zap.SugaredLogger
}

// NewFactory wraps an existing zap.Logger.
func NewFactory(base *zap.Logger) *Factory {
	return &Factory{base: base.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// NewDefaultFactory builds a production-configured zap logger. If zap fails
// to construct one (it only can when its output paths are unwritable) a
// no-op logger is used instead.
func NewDefaultFactory() *Factory {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return NewFactory(base)
}

// NewLogger implements logging.LoggerFactory.
func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	return &leveled{s: f.base.With("scope", scope)}
}

type leveled struct {
	s *zap.SugaredLogger
}

// zap has no trace level; trace output is folded into debug.
func (l *leveled) Trace(msg string)                          { l.s.Debug(msg) }
func (l *leveled) Tracef(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *leveled) Debug(msg string)                          { l.s.Debug(msg) }
func (l *leveled) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *leveled) Info(msg string)                           { l.s.Info(msg) }
func (l *leveled) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *leveled) Warn(msg string)                           { l.s.Warn(msg) }
func (l *leveled) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *leveled) Error(msg string)                          { l.s.Error(msg) }
func (l *leveled) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }
