// Package log is the process-wide structured logger.
package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	logger     zerolog.Logger
	loggerLock sync.RWMutex
)

func init() {
	// Logs go to stderr so command output on stdout stays clean.
	logger = newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), zerolog.WarnLevel)
}

func newLogger(out io.Writer, console bool, level zerolog.Level) zerolog.Logger {
	if console {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects log output. console selects the human-readable writer.
func SetOutput(out io.Writer, console bool) {
	loggerLock.Lock()
	logger = newLogger(out, console, logger.GetLevel())
	loggerLock.Unlock()
}

// SetLevel sets the global log level at runtime
func SetLevel(levelStr string) {
	level := parseLogLevel(levelStr)
	loggerLock.Lock()
	logger = logger.Level(level)
	loggerLock.Unlock()
}

// parseLogLevel converts a string log level to zerolog.Level.
// Unknown values fall back to warn.
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.WarnLevel
	}
}

func current() *zerolog.Logger {
	loggerLock.RLock()
	l := logger
	loggerLock.RUnlock()
	return &l
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return current().Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return current().Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return current().Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return current().Error()
}

// Logger returns the underlying zerolog.Logger for integrations
func Logger() zerolog.Logger {
	return *current()
}

// zerologWriter adapts zerolog to io.Writer for stdlib-style loggers.
type zerologWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w zerologWriter) Write(p []byte) (n int, err error) {
	// Trim trailing newline that stdlib log adds
	msg := strings.TrimSuffix(string(p), "\n")
	w.logger.WithLevel(w.level).Msg(msg)
	return len(p), nil
}

// StdLogger returns a standard library *log.Logger that writes to zerolog at
// the given level. The Telegram SDK logs through it.
func StdLogger(level zerolog.Level) *stdlog.Logger {
	return stdlog.New(zerologWriter{logger: Logger(), level: level}, "", 0)
}
