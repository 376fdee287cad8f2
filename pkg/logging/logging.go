// Package logging defines the logger used across the extractor so packages do
// not depend on a concrete logging library. The CLI backs it with logrus; the
// slog adapter serves embedders that already use log/slog.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface implemented by the logrus and slog adapters.
type Logger interface {
	// WithField creates a new logger with an additional field
	WithField(key string, value interface{}) Logger
	// WithFields creates a new logger with additional fields
	WithFields(fields map[string]interface{}) Logger
	// WithError creates a new logger with an error field
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewLogrusAdapter(logger)
}
