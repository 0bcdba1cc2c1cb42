package breakpoint

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aivorynet/breakmark/pkg/mark"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often a blocked Set re-checks the console state.
const DefaultPollInterval = time.Second

// Recorder receives every site that passed through the marker.
type Recorder interface {
	Record(site Site)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used before Enable supplies one.
func WithLogger(l *logrus.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithPollInterval sets how often a waiting Set re-checks the console state.
func WithPollInterval(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithRecorder sets the hit recorder.
func WithRecorder(r Recorder) GateOption {
	return func(g *Gate) {
		g.recorder = r
	}
}

// Gate blocks Set callers until a debugger console is attached.
type Gate struct {
	enabled   atomic.Bool
	connected atomic.Bool

	mu     sync.RWMutex // guards logger
	logger *logrus.Logger

	pollInterval time.Duration
	recorder     Recorder
}

// NewGate returns a disabled gate.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		logger:       Log,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enable turns the gate on and marks the console as not connected. A nil
// logger keeps the current one.
func (g *Gate) Enable(logger *logrus.Logger) {
	g.connected.Store(false)
	g.enabled.Store(true)
	g.SetLogger(logger)
	g.log().Info("enabled")
}

// Disable turns the gate off. Blocked Set calls return on their next poll.
func (g *Gate) Disable() {
	g.enabled.Store(false)
}

// Enabled reports whether the gate is on.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// SetLogger replaces the logger. It returns false when the gate is disabled or
// logger is nil.
func (g *Gate) SetLogger(logger *logrus.Logger) bool {
	if !g.Enabled() || logger == nil {
		return false
	}
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
	return true
}

// SetConsoleConnected opens the gate. Debuggers call it while the process is
// stopped, e.g. `call github.com/aivorynet/breakmark/pkg/agent.SetConsoleConnected()`,
// so it must not take locks.
func (g *Gate) SetConsoleConnected() {
	g.connected.Store(true)
}

// SetConsoleDetached closes the gate again.
func (g *Gate) SetConsoleDetached() {
	g.connected.Store(false)
}

// ConsoleConnected reports whether a console is attached.
func (g *Gate) ConsoleConnected() bool {
	return g.connected.Load()
}

// Set waits for the console, then passes through the marker and records the
// hit. It returns nil at once when the gate is disabled and ctx.Err() if ctx
// ends while waiting.
func (g *Gate) Set(ctx context.Context, site Site) error {
	return g.SetFunc(ctx, func() Site { return site })
}

// SetFunc is Set with a lazily built site. locate is not called when the
// gate is disabled.
func (g *Gate) SetFunc(ctx context.Context, locate func() Site) error {
	if !g.Enabled() {
		return nil
	}
	site := locate()

	if !g.connected.Load() {
		ticker := time.NewTicker(g.pollInterval)
		defer ticker.Stop()

		for !g.connected.Load() {
			if !g.Enabled() {
				return nil
			}
			g.log().WithField("location", site.Location()).
				Info("breakpoint.set: waiting for debugger console")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}

	mark.BreakpointMark()
	mark.Trap()

	if g.recorder != nil {
		g.recorder.Record(site)
	}
	return nil
}

func (g *Gate) log() *logrus.Entry {
	g.mu.RLock()
	l := g.logger
	g.mu.RUnlock()
	return l.WithFields(logrus.Fields{
		"pid": os.Getpid(),
		"tid": threadID(),
	})
}
