// Package logger wraps logrus with the conventions used across the
// launchwave services: a component field on every line and a small
// config surface for level and format.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls the behaviour of a Logger.
type LoggingConfig struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	Output    string // empty or "stdout" for stdout, otherwise a file path
	Component string
}

// Logger is a structured logger scoped to a component. The embedded
// entry exposes the usual WithField/WithError/Info chain.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from config.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.TrimSpace(strings.ToLower(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(outputWriter(cfg.Output))

	component := cfg.Component
	if component == "" {
		component = "app"
	}
	return &Logger{Entry: base.WithField("component", component)}
}

// NewDefault returns an info-level text logger for the given component.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Level: "info", Format: "text", Component: component})
}

// WithField returns a logger with an extra structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

func outputWriter(output string) io.Writer {
	switch strings.TrimSpace(strings.ToLower(output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return os.Stdout
		}
		return f
	}
}
