package log

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	verbose     atomic.Bool
	disableLogs atomic.Bool
	forceStdErr atomic.Bool

	stdoutLogger = newLogger(os.Stdout)
	stderrLogger = newLogger(os.Stderr)

	logPrefixes = map[logrus.Level]string{
		logrus.DebugLevel: "\033[37m[DBG]\033[0m", // White
		logrus.InfoLevel:  "\033[36m[INF]\033[0m", // Cyan
		logrus.WarnLevel:  "\033[33m[WRN]\033[0m", // Yellow
		logrus.ErrorLevel: "\033[31m[ERR]\033[0m", // Red
	}
)

// prefixFormatter renders entries as "<level tag> <message>".
type prefixFormatter struct{}

// Format implements logrus.Formatter.
func (f *prefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefix, ok := logPrefixes[entry.Level]
	if !ok {
		prefix = logPrefixes[logrus.ErrorLevel]
	}
	line := make([]byte, 0, len(prefix)+len(entry.Message)+2)
	line = append(line, prefix...)
	line = append(line, ' ')
	line = append(line, entry.Message...)
	line = append(line, '\n')
	return line, nil
}

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&prefixFormatter{})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// SetVerbose sets the logging verbosity. If true, all log levels are displayed.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verbose.Load()
}

// DisableLogs disables all logging.
func DisableLogs() {
	disableLogs.Store(true)
}

// IsDisabled returns true if logging is disabled.
func IsDisabled() bool {
	return disableLogs.Load()
}

// SetForceStdErr sends every level to stderr when enabled.
func SetForceStdErr(v bool) {
	forceStdErr.Store(v)
}

// SetOutput redirects both streams to w. Intended for tests.
func SetOutput(w io.Writer) {
	stdoutLogger.SetOutput(w)
	stderrLogger.SetOutput(w)
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		logMessage(logrus.DebugLevel, format, args...)
	}
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logMessage(logrus.InfoLevel, format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logMessage(logrus.WarnLevel, format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	logMessage(logrus.ErrorLevel, format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	logMessage(logrus.ErrorLevel, format, args...)
	os.Exit(1)
}

// logMessage writes a message with the given level to the matching stream.
func logMessage(level logrus.Level, format string, args ...interface{}) {
	if disableLogs.Load() {
		return
	}

	logger := stdoutLogger
	if forceStdErr.Load() || level <= logrus.ErrorLevel {
		logger = stderrLogger
	}
	logger.Logf(level, format, args...)
}
