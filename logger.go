package framegraph

import (
	"log/slog"
	"sync/atomic"
)

// discard is the logger in effect until SetLogger installs another one.
var discard = slog.New(slog.DiscardHandler)

// current is shared by framegraph and its sub-packages.
var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(discard)
}

// SetLogger configures the logger for framegraph and its sub-packages.
// Nothing is logged by default; nil restores that.
//
// Levels:
//   - [slog.LevelDebug]: node registration, setup and release, resource registration
//   - [slog.LevelInfo]: graph compiled, device opened, config loaded, renderer ready
//   - [slog.LevelWarn]: resource overwrites, failed waits on close
//
// A Graph built with WithLogger ignores it.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	current.Store(l)
}

// Logger returns the logger set by SetLogger. The gpu, shader, config and
// deferred packages log through it.
func Logger() *slog.Logger {
	return current.Load()
}

// logger returns the graph's own logger if it has one.
func (g *Graph) logger() *slog.Logger {
	if g.log != nil {
		return g.log
	}
	return Logger()
}
