// Package seedlog implements a small leveled logger for graftd: a
// stderr writer with level gating via an environment variable, no
// external logging dependency.
package seedlog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

type Level int

const (
	FatalLevel Level = iota - 1
	ErrorLevel
	WarnLevel
	InfoLevel
	VerboseLevel
	DebugLevel
)

func (l Level) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case InfoLevel:
		return "INFO"
	case VerboseLevel:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "LOG"
	}
}

var (
	mu         sync.Mutex
	level      = InfoLevel
	writer     = io.Writer(os.Stderr)
	bootID     string
)

func init() {
	if v := os.Getenv("GRAFTD_LOGLEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			level = Level(n)
		}
	}
}

// SetLevel overrides the active log level, e.g. from Config.Verbose.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetWriter redirects log output, returning the previous writer so
// callers (tests) can restore it.
func SetWriter(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := writer
	if w != nil {
		writer = w
	}
	return prev
}

// SetBootID stamps every subsequent Verbose/Debug line with a
// correlation id, so multi-line boot logs can be grepped together.
func SetBootID(id string) {
	mu.Lock()
	defer mu.Unlock()
	bootID = id
}

func writef(msgLevel Level, context, format string, a ...interface{}) {
	mu.Lock()
	l, w, id := level, writer, bootID
	mu.Unlock()

	if l < msgLevel {
		return
	}

	msg := fmt.Sprintf(format, a...)
	msg = strings.TrimRight(msg, "\n")

	prefix := fmt.Sprintf("%-8s", msgLevel.String()+":")
	if context != "" {
		prefix += " " + context
	}
	if id != "" && msgLevel >= VerboseLevel {
		prefix += fmt.Sprintf(" [%s]", id)
	}
	fmt.Fprintf(w, "%s %s\n", prefix, msg)
}

// Fatalf logs at FATAL and exits the process with code 255.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, "", format, a...)
	os.Exit(255)
}

// Errorf logs at ERROR.
func Errorf(format string, a ...interface{}) {
	writef(ErrorLevel, "", format, a...)
}

// Warningf logs at WARNING.
func Warningf(format string, a ...interface{}) {
	writef(WarnLevel, "", format, a...)
}

// Infof logs at INFO.
func Infof(format string, a ...interface{}) {
	writef(InfoLevel, "", format, a...)
}

// Verbosef logs at VERBOSE.
func Verbosef(format string, a ...interface{}) {
	writef(VerboseLevel, "", format, a...)
}

// Debugf logs at DEBUG.
func Debugf(format string, a ...interface{}) {
	writef(DebugLevel, "", format, a...)
}

// Context returns a logger bound to a stable bracketed context prefix,
// e.g. seedlog.Context("[OVERLAY]").Warningf("mount failed: %v", err).
type ContextLogger struct {
	prefix string
}

func Context(prefix string) ContextLogger {
	return ContextLogger{prefix: prefix}
}

func (c ContextLogger) Errorf(format string, a ...interface{})   { writef(ErrorLevel, c.prefix, format, a...) }
func (c ContextLogger) Warningf(format string, a ...interface{}) { writef(WarnLevel, c.prefix, format, a...) }
func (c ContextLogger) Infof(format string, a ...interface{})    { writef(InfoLevel, c.prefix, format, a...) }
func (c ContextLogger) Verbosef(format string, a ...interface{}) { writef(VerboseLevel, c.prefix, format, a...) }
func (c ContextLogger) Debugf(format string, a ...interface{})   { writef(DebugLevel, c.prefix, format, a...) }
