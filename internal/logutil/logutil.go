// Package logutil hands out scoped pion loggers to the decoder components.
package logutil

import (
	"io"

	"github.com/pion/logging"
)

// Discard returns a factory whose loggers drop everything.
func Discard() logging.LoggerFactory {
	return &logging.DefaultLoggerFactory{
		Writer:          io.Discard,
		DefaultLogLevel: logging.LogLevelDisabled,
	}
}

// Scoped returns a logger for scope, or a discarding one when f is nil.
func Scoped(f logging.LoggerFactory, scope string) logging.LeveledLogger {
	if f == nil {
		f = Discard()
	}
	return f.NewLogger(scope)
}
