package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// SlogLogger adapts a slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a text-handler slog logger with the specified level.
func NewSlogLogger(level slog.Level, writer io.Writer) *SlogLogger {
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	return &SlogLogger{logger: slog.New(handler)}
}

// NewSlogLoggerFromLogger creates a SlogLogger from an existing slog.Logger
func NewSlogLoggerFromLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// WithField creates a new logger with an additional field
func (s *SlogLogger) WithField(key string, value interface{}) Logger {
	return &SlogLogger{logger: s.logger.With(key, value)}
}

// WithFields creates a new logger with additional fields
func (s *SlogLogger) WithFields(fields map[string]interface{}) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &SlogLogger{logger: s.logger.With(args...)}
}

// WithError creates a new logger with an error field
func (s *SlogLogger) WithError(err error) Logger {
	return s.WithField("error", err)
}

// Debugf logs a formatted message at Debug level
func (s *SlogLogger) Debugf(format string, args ...interface{}) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at Info level
func (s *SlogLogger) Infof(format string, args ...interface{}) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at Warn level
func (s *SlogLogger) Warnf(format string, args ...interface{}) {
	s.logger.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at Error level
func (s *SlogLogger) Errorf(format string, args ...interface{}) {
	s.logger.Error(fmt.Sprintf(format, args...))
}

// Debug logs a message at Debug level
func (s *SlogLogger) Debug(args ...interface{}) {
	s.logger.Debug(fmt.Sprint(args...))
}

// Info logs a message at Info level
func (s *SlogLogger) Info(args ...interface{}) {
	s.logger.Info(fmt.Sprint(args...))
}

// Warn logs a message at Warn level
func (s *SlogLogger) Warn(args ...interface{}) {
	s.logger.Warn(fmt.Sprint(args...))
}

// Error logs a message at Error level
func (s *SlogLogger) Error(args ...interface{}) {
	s.logger.Error(fmt.Sprint(args...))
}
