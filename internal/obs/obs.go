// Package obs provides the process-wide structured logger. Library code
// never constructs its own logger; it accepts one (possibly nil) at
// construction time and falls back to a no-op logger so tests stay quiet.
package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	process *zap.Logger
)

// Init installs the process-wide logger. Safe to call once at program
// startup; subsequent calls replace it (used by tests that want to capture
// output).
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	process = l
}

// L returns the process-wide logger, or a no-op logger if none was
// installed or a nil logger was explicitly passed in.
func L(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if process != nil {
		return process
	}
	return zap.NewNop()
}

// NewDevelopment builds a human-readable development logger, used by the
// CLI entry point and by tests that want to see log output.
func NewDevelopment() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// NewProduction builds a JSON production logger.
func NewProduction() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
