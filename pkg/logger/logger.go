// Package logger provides the structured logger shared by all application
// components. It wraps logrus so call sites can chain contextual fields
// without caring about the underlying backend.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled, structured logger scoped to a component.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewDefault builds a logger writing JSON to stderr at the level given by
// LOG_LEVEL (info when unset), tagged with the component name.
func NewDefault(component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	return &Logger{
		base:  base,
		entry: base.WithField("component", component),
	}
}

func parseLevel(raw string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(raw)))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SetOutput redirects all output, including derived loggers.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// SetLevel adjusts the minimum emitted level.
func (l *Logger) SetLevel(raw string) {
	l.base.SetLevel(parseLevel(raw))
}

// WithField returns a logger carrying an additional contextual field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// WithError returns a logger carrying the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...any)  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...any)  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...any) { l.entry.Error(args...) }
