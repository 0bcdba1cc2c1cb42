// Package transport provides the WebSocket link to a debugger console.
//
// The console learns which marker symbol to break on from the register
// message and tells the process when it has attached (console_connected) or
// gone away (console_detached). Breakpoint hits flow the other way.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aivorynet/breakmark/pkg/breakpoint"
	"github.com/aivorynet/breakmark/pkg/mark"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message types exchanged with the console.
const (
	TypeRegister         = "register"
	TypeRegistered       = "registered"
	TypeHeartbeat        = "heartbeat"
	TypeBreakpointHit    = "breakpoint_hit"
	TypeConsoleConnected = "console_connected"
	TypeConsoleDetached  = "console_detached"
	TypeError            = "error"
)

const maxReconnectDelay = 60 * time.Second

// Handler receives console attach and detach notifications.
// *breakpoint.Gate satisfies it.
type Handler interface {
	SetConsoleConnected()
	SetConsoleDetached()
}

// Message represents a WebSocket message.
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithReconnectDelay sets the initial reconnect backoff.
func WithReconnectDelay(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.reconnectDelay = d }
}

// WithMaxReconnectAttempts sets how many consecutive failed dials are tolerated.
func WithMaxReconnectAttempts(n int) ConnectionOption {
	return func(c *Connection) { c.maxReconnectAttempts = n }
}

// WithHostname sets the hostname announced in the register message.
func WithHostname(hostname string) ConnectionOption {
	return func(c *Connection) {
		if hostname != "" {
			c.hostname = hostname
		}
	}
}

// WithHeartbeatInterval sets the heartbeat period.
func WithHeartbeatInterval(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.heartbeatInterval = d }
}

// Connection represents a WebSocket connection to a debugger console.
type Connection struct {
	url       string
	sessionID string
	hostname  string
	handler   Handler
	log       logrus.FieldLogger

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	authenticated bool

	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	heartbeatInterval    time.Duration

	messageQueue chan []byte
	done         chan struct{}
	doneOnce     sync.Once
}

// NewConnection creates a new connection. handler may be nil.
func NewConnection(url, sessionID string, handler Handler, logger logrus.FieldLogger, opts ...ConnectionOption) *Connection {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	c := &Connection{
		url:                  url,
		sessionID:            sessionID,
		hostname:             hostname,
		handler:              handler,
		log:                  logger.WithField("session", sessionID),
		maxReconnectAttempts: 10,
		reconnectDelay:       time.Second,
		heartbeatInterval:    30 * time.Second,
		messageQueue:         make(chan []byte, 100),
		done:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect keeps the connection up until ctx ends, Disconnect is called or the
// reconnect budget is spent. It blocks; run it in its own goroutine. After a
// Disconnect, Connect returns at once; cancel ctx instead to be able to call
// Connect again.
func (c *Connection) Connect(ctx context.Context) {
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.mu.Unlock()

	for {
		if c.stopped(ctx) {
			return
		}

		if err := c.connect(ctx); err != nil {
			c.log.WithError(err).Debug("connection error")
		} else {
			c.runMessageLoop(ctx)
		}

		if c.stopped(ctx) {
			return
		}

		delay, attempt, ok := c.nextBackoff()
		if !ok {
			c.log.Warn("max reconnect attempts reached")
			return
		}
		c.log.Debugf("reconnecting in %v (attempt %d)", delay, attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Connection) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// nextBackoff counts a failed or dropped session and returns the delay before
// the next dial. The count is reset when the console sends registered.
func (c *Connection) nextBackoff() (time.Duration, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconnectAttempts++
	if c.reconnectAttempts > c.maxReconnectAttempts {
		return 0, c.reconnectAttempts, false
	}

	delay := c.reconnectDelay
	for i := 1; i < c.reconnectAttempts && delay < maxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay, c.reconnectAttempts, true
}

// Disconnect closes the connection and stops Connect. Safe to call more than once.
func (c *Connection) Disconnect() {
	c.doneOnce.Do(func() { close(c.done) })
	c.closeConn()
}

// SendBreakpointHit queues a hit event for the console.
func (c *Connection) SendBreakpointHit(event *breakpoint.HitEvent) {
	c.send(TypeBreakpointHit, event)
}

// IsConnected returns true if connected and registered.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.authenticated
}

func (c *Connection) connect(ctx context.Context) error {
	headers := http.Header{}
	headers.Set("X-Breakmark-Session", c.sessionID)

	c.log.Debugf("connecting to %s", c.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, headers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.Debug("websocket connected")
	if err := c.register(); err != nil {
		c.closeConn()
		return err
	}
	return nil
}

func (c *Connection) register() error {
	return c.sendDirect(TypeRegister, Registration{
		SessionID:   c.sessionID,
		PID:         os.Getpid(),
		Hostname:    c.hostname,
		Symbol:      mark.Symbol,
		CSymbol:     mark.CSymbol,
		RuntimeInfo: CurrentRuntimeInfo(),
	})
}

func (c *Connection) runMessageLoop(ctx context.Context) {
	heartbeatTicker := time.NewTicker(c.heartbeatInterval)
	defer heartbeatTicker.Stop()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.log.WithError(err).Debug("read error")
				}
				return
			}
			c.handleMessage(message)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.closeConn()
			<-readDone
			return
		case <-c.done:
			c.closeConn()
			<-readDone
			return
		case <-readDone:
			c.closeConn()
			if c.handler != nil {
				c.handler.SetConsoleDetached()
			}
			return
		case <-heartbeatTicker.C:
			if c.IsConnected() {
				c.send(TypeHeartbeat, map[string]interface{}{
					"timestamp": time.Now().UnixMilli(),
				})
			}
		case msg := <-c.messageQueue:
			if c.IsConnected() {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.log.WithError(err).Debug("write error")
				}
			}
		}
	}
}

func (c *Connection) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.authenticated = false
}

func (c *Connection) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.WithError(err).Debug("error parsing message")
		return
	}

	c.log.Debugf("received: %s", msg.Type)

	switch msg.Type {
	case TypeRegistered:
		c.handleRegistered()
	case TypeConsoleConnected:
		c.log.Info("debugger console connected")
		if c.handler != nil {
			c.handler.SetConsoleConnected()
		}
	case TypeConsoleDetached:
		c.log.Info("debugger console detached")
		if c.handler != nil {
			c.handler.SetConsoleDetached()
		}
	case TypeError:
		c.handleError(msg.Payload)
	default:
		c.log.Debugf("unhandled message type: %s", msg.Type)
	}
}

func (c *Connection) handleRegistered() {
	c.mu.Lock()
	c.authenticated = true
	c.reconnectAttempts = 0
	c.mu.Unlock()

	c.log.Debug("session registered")
}

func (c *Connection) handleError(payload interface{}) {
	payloadMap, ok := payload.(map[string]interface{})
	if !ok {
		return
	}

	code, _ := payloadMap["code"].(string)
	message, _ := payloadMap["message"].(string)

	c.log.Warnf("console error: %s - %s", code, message)

	if code == "auth_error" {
		c.log.Warn("registration rejected, disabling reconnect")
		c.mu.Lock()
		c.maxReconnectAttempts = 0
		c.mu.Unlock()
		c.Disconnect()
	}
}

func (c *Connection) send(msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		c.log.WithError(err).Debug("error marshaling message")
		return
	}

	if !c.IsConnected() {
		return
	}

	select {
	case c.messageQueue <- data:
	default:
		// Queue full, drop oldest.
		select {
		case <-c.messageQueue:
		default:
		}
		select {
		case c.messageQueue <- data:
		default:
		}
	}
}

func (c *Connection) sendDirect(msgType string, payload interface{}) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}
