// Package std provides a logging.LoggerFactory over the standard library
// log package, for applications that don't carry a structured logger.
package std

import (
	"io"

	"github.com/pion/logging"
)

// Factory hands out loggers writing line-oriented output to Writer.
type Factory struct {
	Level  logging.LogLevel
	Writer io.Writer
}

// NewFactory returns a factory emitting at the given level. A nil writer
// selects the logging package default (stderr).
func NewFactory(level logging.LogLevel, w io.Writer) *Factory {
	return &Factory{Level: level, Writer: w}
}

// NewLogger implements logging.LoggerFactory.
func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	return logging.NewDefaultLeveledLoggerForScope(scope, f.Level, f.Writer)
}
