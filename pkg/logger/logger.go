// Package logger wraps logrus with the field/format conventions used across
// the trust ledger engine.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a bound component name.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls level/format/output for a Logger.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger for the given component name.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewDefault builds a Logger with info level, text format, for ad-hoc use
// (tests, component constructors without an injected config).
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text"})
}

// WithField returns a log entry scoped to this logger's component plus the
// given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields returns a log entry scoped to this logger's component plus the
// given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns a log entry scoped to this logger's component carrying
// the given error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithError(err)
}
