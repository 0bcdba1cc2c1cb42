package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aivorynet/breakmark/pkg/binding"
	"github.com/aivorynet/breakmark/pkg/breakpoint"
	"github.com/aivorynet/breakmark/pkg/transport"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	Log.SetOutput(io.Discard)
	binding.Log.SetOutput(io.Discard)
	breakpoint.Log.SetOutput(io.Discard)
	goleak.VerifyTestMain(m)
}

func testConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	cfg.SessionID = "test-session"
	cfg.PollInterval = time.Millisecond
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func TestStartStopRegistersModule(t *testing.T) {
	a := New(testConfig())
	a.Start()
	a.Start()

	if _, ok := binding.Lookup(binding.BreakpointModuleName); !ok {
		t.Fatal("breakpoint module not registered after Start")
	}
	if !a.Gate().Enabled() {
		t.Error("gate should be enabled")
	}

	a.Stop()
	a.Stop()

	if _, ok := binding.Lookup(binding.BreakpointModuleName); ok {
		t.Fatal("breakpoint module still registered after Stop")
	}
	if a.Gate().Enabled() {
		t.Error("gate should be disabled after Stop")
	}
}

func TestStartDisabled(t *testing.T) {
	a := New(testConfig(WithEnabled(false)))
	a.Start()
	defer a.Stop()

	if a.Gate().Enabled() {
		t.Fatal("gate enabled despite Enabled=false")
	}
	if err := a.Set(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(a.Hits()) != 0 {
		t.Fatal("disabled agent recorded a hit")
	}
}

func TestSetRecordsGoCaller(t *testing.T) {
	a := New(testConfig())
	a.Start()
	defer a.Stop()

	a.SetConsoleConnected()
	if err := a.Set(context.Background()); err != nil {
		t.Fatal(err)
	}

	hits := a.Hits()
	if len(hits) != 1 || hits[0].Count != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	if !strings.Contains(hits[0].Location, "agent_test.go:") {
		t.Errorf("location = %q", hits[0].Location)
	}
}

func TestSetWaitsForConsole(t *testing.T) {
	a := New(testConfig())
	a.Start()
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := a.Set(ctx); err == nil {
		t.Fatal("Set returned without a console")
	}

	a.SetConsoleDetached()
	if a.Gate().ConsoleConnected() {
		t.Fatal("console connected after detach")
	}
}

func TestScriptBreakpointThroughAgent(t *testing.T) {
	a := New(testConfig())
	a.Start()
	defer a.Stop()
	a.SetConsoleConnected()

	thread := binding.NewThread(context.Background(), "agent-test")
	src := "def f():\n    breakpoint.set()\n\nf()\nf()\n"
	if _, err := binding.ExecFile(thread, "agent.star", src); err != nil {
		t.Fatal(err)
	}

	hits := a.Hits()
	if len(hits) != 1 || hits[0].Location != "agent.star:2" || hits[0].Count != 2 {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestAgentWithConsole(t *testing.T) {
	hits := make(chan transport.Message, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg transport.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case transport.TypeRegister:
				if err := conn.WriteJSON(transport.Message{Type: transport.TypeRegistered}); err != nil {
					return
				}
				if err := conn.WriteJSON(transport.Message{Type: transport.TypeConsoleConnected}); err != nil {
					return
				}
			case transport.TypeBreakpointHit:
				select {
				case hits <- msg:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	a := New(testConfig(WithConsoleURL("ws" + strings.TrimPrefix(srv.URL, "http"))))
	a.Start()
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Set(ctx); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !a.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("agent never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// The hit may be sent before registration completes, so hit again.
	if err := a.Set(ctx); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case msg := <-hits:
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			t.Fatal(err)
		}
		var event breakpoint.HitEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatal(err)
		}
		if event.SessionID != "test-session" || !strings.Contains(event.Location, "agent_test.go:") {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("console never received a breakpoint hit")
	}
}

func TestPackageLevelWithoutInit(t *testing.T) {
	if GetAgent() != nil {
		t.Skip("global agent already initialized")
	}
	if err := Set(context.Background()); err != nil {
		t.Fatal(err)
	}
	SetConsoleConnected()
	Shutdown()
}

func TestRestartReconnectsToConsole(t *testing.T) {
	var sessions atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sessions.Add(1)

		for {
			var msg transport.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == transport.TypeRegister {
				if err := conn.WriteJSON(transport.Message{Type: transport.TypeRegistered}); err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	a := New(testConfig(WithConsoleURL("ws" + strings.TrimPrefix(srv.URL, "http"))))
	waitConnected := func() {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !a.Connected() {
			if time.Now().After(deadline) {
				t.Fatalf("agent not connected, sessions=%d", sessions.Load())
			}
			time.Sleep(time.Millisecond)
		}
	}

	a.Start()
	waitConnected()
	a.Stop()
	if a.Connected() {
		t.Fatal("still connected after Stop")
	}

	a.Start()
	defer a.Stop()
	waitConnected()
	if n := sessions.Load(); n != 2 {
		t.Fatalf("sessions = %d, want 2", n)
	}
}

func TestGlobalAgentConcurrentAccess(t *testing.T) {
	if GetAgent() != nil {
		t.Skip("global agent already initialized")
	}
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("BREAKMARK_CONSOLE_URL", "")
	t.Cleanup(Shutdown)

	var g errgroup.Group
	g.Go(func() error {
		Init(WithEnabled(false), WithPollInterval(time.Millisecond))
		return nil
	})
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			SetConsoleConnected()
			return Set(context.Background())
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	a := GetAgent()
	if a == nil || a != Init() {
		t.Fatal("Init must return the single global agent")
	}
	if a.Gate().Enabled() {
		t.Error("options passed to the first Init were not applied")
	}
}
