package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a logger with the given level and format ("text" or "json").
func NewLogger(level, format string) *logrus.Logger {
	return NewLoggerWithOutput(level, format, os.Stderr)
}

// NewLoggerWithOutput creates a logger writing to w.
func NewLoggerWithOutput(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// NewSilentLogger creates a logger that discards all output.
func NewSilentLogger() *logrus.Logger {
	return NewLoggerWithOutput("panic", "text", io.Discard)
}
