// Package logging builds the leveled terminal logger shared by all components.
package logging

import (
	"fmt"
	"strings"

	"github.com/mborders/logmatic"
)

// Levels accepted by New, most verbose first.
var Levels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// New creates a logger at the named level. Fatal messages never exit the process;
// callers decide how to shut down.
func New(level string) (*logmatic.Logger, error) {
	l := logmatic.NewLogger()
	l.ExitOnFatal = false

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		l.SetLevel(logmatic.TRACE)
	case "debug":
		l.SetLevel(logmatic.DEBUG)
	case "", "info":
		l.SetLevel(logmatic.INFO)
	case "warn", "warning":
		l.SetLevel(logmatic.WARN)
	case "error":
		l.SetLevel(logmatic.ERROR)
	case "fatal":
		l.SetLevel(logmatic.FATAL)
	default:
		return nil, fmt.Errorf("unknown log level %q (want one of %s)", level, strings.Join(Levels, ", "))
	}

	return l, nil
}

// Default returns an info-level logger.
func Default() *logmatic.Logger {
	l, _ := New("info")
	return l
}

// Quiet returns a logger that only emits fatal messages. Used by tests.
func Quiet() *logmatic.Logger {
	l, _ := New("fatal")
	return l
}

// OrDefault returns l, or an info-level logger when l is nil.
func OrDefault(l *logmatic.Logger) *logmatic.Logger {
	if l == nil {
		return Default()
	}
	return l
}
