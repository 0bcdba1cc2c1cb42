package agent

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aivorynet/breakmark/pkg/binding"
	"github.com/aivorynet/breakmark/pkg/breakpoint"
	"github.com/aivorynet/breakmark/pkg/capture"
	"github.com/aivorynet/breakmark/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Agent owns the breakpoint gate and, when a console URL is configured, the
// connection to the debugger console.
type Agent struct {
	config     *Config
	logger     *logrus.Logger
	gate       *breakpoint.Gate
	manager    *breakpoint.Manager
	connection *transport.Connection

	mu        sync.RWMutex
	started   bool
	cancel    context.CancelFunc
	connDone  chan struct{}
	ownModule bool
}

var (
	globalAgent atomic.Pointer[Agent]
	globalOnce  sync.Once
)

// New builds an agent from cfg without starting it.
func New(cfg *Config) *Agent {
	a := &Agent{
		config: cfg,
		logger: newLogger(cfg),
	}

	var sender breakpoint.Sender
	if cfg.ConsoleURL != "" {
		a.connection = transport.NewConnection(cfg.ConsoleURL, cfg.SessionID, a, a.logger,
			transport.WithHostname(cfg.Hostname))
		sender = a.connection
	}
	a.manager = breakpoint.NewManager(cfg.SessionID, sender, cfg.MaxHitsPerSecond)
	a.gate = breakpoint.NewGate(
		breakpoint.WithLogger(a.logger),
		breakpoint.WithPollInterval(cfg.PollInterval),
		breakpoint.WithRecorder(a.manager),
	)
	return a
}

// Init initializes and starts the global agent with the given options. Only
// the first call has any effect.
func Init(options ...ConfigOption) *Agent {
	globalOnce.Do(func() {
		a := New(NewConfig(options...))
		a.Start()
		globalAgent.Store(a)
		a.logger.WithField("session", a.config.SessionID).Info("breakmark agent initialized")
	})
	return globalAgent.Load()
}

// GetAgent returns the global agent instance, or nil before Init.
func GetAgent() *Agent {
	return globalAgent.Load()
}

// Start registers the breakpoint script module, enables the gate if
// configured and connects to the console.
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return
	}

	mod := binding.NewBreakpointModule(a.gate, a.config.MaxCaptureDepth)
	if err := binding.Register(binding.BreakpointModuleName, mod); err != nil {
		a.logger.WithError(err).Warn("breakpoint module not registered")
	} else {
		a.ownModule = true
	}

	if a.config.Enabled {
		a.gate.Enable(a.logger)
	}

	if a.connection != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.connDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			a.connection.Connect(ctx)
		}(a.connDone)
	}

	a.started = true
	a.logger.Debug("agent started")
}

// Stop disconnects from the console, disables the gate and unregisters the
// script module. Blocked breakpoints are released. The agent can be started
// again.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}

	if a.connection != nil {
		a.cancel()
		<-a.connDone
	}

	a.gate.Disable()

	if a.ownModule {
		binding.Unregister(binding.BreakpointModuleName)
		a.ownModule = false
	}

	a.started = false
	a.logger.Debug("agent stopped")
}

// Set is a breakpoint for Go callers: it waits for the console and passes
// through the marker like breakpoint.set() does for scripts.
func (a *Agent) Set(ctx context.Context) error {
	return a.gate.Set(ctx, goSite(2))
}

// SetConsoleConnected opens the gate. It satisfies transport.Handler.
func (a *Agent) SetConsoleConnected() {
	a.gate.SetConsoleConnected()
}

// SetConsoleDetached closes the gate. It satisfies transport.Handler.
func (a *Agent) SetConsoleDetached() {
	a.gate.SetConsoleDetached()
}

// Gate returns the breakpoint gate.
func (a *Agent) Gate() *breakpoint.Gate {
	return a.gate
}

// Hits returns the hit records collected so far.
func (a *Agent) Hits() []breakpoint.Hit {
	return a.manager.Hits()
}

// Config returns the agent configuration.
func (a *Agent) Config() *Config {
	return a.config
}

// Connected reports whether the console link is up.
func (a *Agent) Connected() bool {
	return a.connection != nil && a.connection.IsConnected()
}

func newLogger(cfg *Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(Log.Out)
	l.SetFormatter(Log.Formatter)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
	return l
}

// goSite describes the Go caller skip frames above goSite.
func goSite(skip int) breakpoint.Site {
	site := breakpoint.Site{NativeFrames: capture.NativeFrames(skip)}
	if pc, file, line, ok := runtime.Caller(skip); ok {
		site.File = file
		site.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			site.Function = fn.Name()
		}
	}
	return site
}

// Package-level convenience functions

// Set runs a breakpoint through the global agent. It returns nil when Init
// has not been called.
func Set(ctx context.Context) error {
	a := globalAgent.Load()
	if a == nil {
		return nil
	}
	return a.gate.Set(ctx, goSite(2))
}

// SetConsoleConnected opens the global agent's gate. Intended to be called
// from a debugger:
//
//	(dlv) call github.com/aivorynet/breakmark/pkg/agent.SetConsoleConnected()
func SetConsoleConnected() {
	if a := globalAgent.Load(); a != nil {
		a.SetConsoleConnected()
	}
}

// Shutdown stops the global agent.
func Shutdown() {
	if a := globalAgent.Load(); a != nil {
		a.Stop()
	}
}
