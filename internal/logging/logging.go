// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup configures the standard logger. Logs always go to stderr; when
// filePath is set they are also appended to that file. The returned closer
// releases the file, if any.
func Setup(level logrus.Level, format, filePath string) (io.Closer, error) {
	switch format {
	case FormatJSON:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case FormatText, "":
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	logrus.SetLevel(level)

	if filePath == "" {
		logrus.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}

// Level maps a base level name and a -v count to a logrus level.
// Each verbosity step lowers the threshold by one (info → debug → trace).
func Level(name string, verbosity int) (logrus.Level, error) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel, err
	}
	level += logrus.Level(verbosity)
	if level > logrus.TraceLevel {
		level = logrus.TraceLevel
	}
	return level, nil
}
