// Package logging provides the prefixed stderr logger shared by the server,
// the coordinator and the observers.
package logging

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebug toggles Debugf output for every Logger in the process.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Logger writes operational messages with a bracketed component prefix.
type Logger struct {
	logger *log.Logger
}

// New returns a Logger writing to stderr with the given component name.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter returns a Logger writing to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "["+component+"] ", log.LstdFlags),
	}
}

// Discard returns a Logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewWithWriter("", io.Discard)
}

func (l *Logger) Printf(format string, v ...any) {
	l.logger.Printf(format, v...)
}

func (l *Logger) Debugf(format string, v ...any) {
	if debugEnabled.Load() {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}
