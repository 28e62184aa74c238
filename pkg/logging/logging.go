// Package logging builds the single *logrus.Entry the application context
// hands down to every subcomponent constructor, and the LOG_LEVEL parsing
// names as an environment variable.
//
// A *logrus.Entry is carried explicitly rather than a package-level
// logger, with logrus.ParseLevel falling back to InfoLevel on an
// unrecognised value.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New parses level (one of debug, info, warn, error, none per )
// and returns a root *logrus.Entry configured with it. "none" silences
// output entirely by directing the logger at io.Discard rather than
// mapping onto a logrus.Level, since logrus has no "off" level of its own.
func New(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level == "none" {
		logger.SetOutput(io.Discard)
		return logrus.NewEntry(logger)
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logrus.NewEntry(logger)
}
