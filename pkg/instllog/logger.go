// Package instllog configures the shared logrus logger used across the
// installer engine: planning diagnostics, executor stage logging, and the
// parallel runner's sub-process drain all write through this logger.
package instllog

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var std = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// L returns the shared logger instance.
func L() *logrus.Logger { return std }

// SetLevel parses a level name (panic, fatal, error, warn, info, debug,
// trace) and applies it, following the teacher's Settings.LogLevel field.
// An unrecognised name leaves the level unchanged.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return
	}
	std.SetLevel(lvl)
}

// SetOutput redirects log output, used by tests to capture log lines.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// WithStage returns an entry carrying the executor's dotted stage path,
// mirroring the error_dict "stage" field from the batch executor design.
func WithStage(stage string) *logrus.Entry {
	return std.WithField("stage", stage)
}
