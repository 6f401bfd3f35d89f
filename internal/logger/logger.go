// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is a logrus entry with lumen's field helpers
type Log struct {
	*logrus.Entry
}

// Fields are a representation of formatted log fields.
type Fields map[string]interface{}

// Logger is the logging surface used by lumen's components
type Logger interface {
	GetLevel() string
	With(fields Fields) *Log
}

// New creates a logger writing to stderr at the given level.
func New(level string) (*Log, error) {
	return NewWithOutput(os.Stderr, level)
}

// NewWithOutput creates a logger writing to out at the given level.
func NewWithOutput(out io.Writer, level string) (*Log, error) {
	log := logrus.New()
	log.SetOutput(out)

	log.Formatter = &logrus.TextFormatter{
		TimestampFormat:  "2006-01-02 15:04:05.0000",
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	return &Log{Entry: logrus.NewEntry(log)}, nil
}

// Discard returns a logger that drops everything, for tests
func Discard() *Log {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Log{Entry: logrus.NewEntry(log)}
}

// With will add the fields to the formatted log entry.
func (l *Log) With(fields Fields) *Log {
	return &Log{Entry: l.WithFields(logrus.Fields(fields))}
}

// GetLevel returns the current log level name
func (l *Log) GetLevel() string {
	return l.Logger.Level.String()
}
