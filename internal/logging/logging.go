// Package logging configures the run's logrus logger. Log output goes to
// stderr (and optionally a file); stdout is reserved for the machine-parsed
// progress lines the control surface consumes.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options selects level and an optional file sink.
type Options struct {
	Verbose  bool
	FilePath string
	Append   bool
}

// New builds the logger. The returned close function flushes and closes the
// file sink when one was requested; it is safe to call when there is none.
func New(opts Options) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	closeFn := func() error { return nil }
	if opts.FilePath != "" {
		flags := os.O_CREATE | os.O_WRONLY
		if opts.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(opts.FilePath, flags, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
		closeFn = f.Close
	}

	return logger, closeFn, nil
}

// Perf returns an entry tagged as performance telemetry. logrus has no
// custom levels, so PERF rides on INFO with a fixed marker field.
func Perf(logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("perf", true)
}
