package breakpoint

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aivorynet/breakmark/pkg/capture"
	"github.com/google/uuid"
)

// DefaultMaxHitsPerSecond caps how many hit events are forwarded per second.
const DefaultMaxHitsPerSecond = 50

// Sender forwards hit events to a debugger console.
type Sender interface {
	SendBreakpointHit(event *HitEvent)
}

// Hit is the per-location hit record.
type Hit struct {
	ID       string
	Location string
	Count    int
	FirstHit time.Time
	LastHit  time.Time
}

// HitEvent is sent to the console for every forwarded hit.
type HitEvent struct {
	ID           string                      `json:"id"`
	SessionID    string                      `json:"session_id"`
	Location     string                      `json:"location"`
	Function     string                      `json:"function,omitempty"`
	HitCount     int                         `json:"hit_count"`
	PID          int                         `json:"pid"`
	TID          int                         `json:"tid"`
	CapturedAt   string                      `json:"captured_at"`
	ScriptFrames []capture.StackFrame        `json:"script_frames,omitempty"`
	NativeFrames []capture.StackFrame        `json:"native_frames,omitempty"`
	Params       map[string]capture.Variable `json:"params,omitempty"`
	Globals      map[string]capture.Variable `json:"globals,omitempty"`
	Source       []capture.SourceLine        `json:"source,omitempty"`
}

// Manager records hits per location and forwards them to a Sender, rate
// limited to maxPerSecond events.
type Manager struct {
	sessionID    string
	sender       Sender
	maxPerSecond int

	mu   sync.Mutex
	hits map[string]*Hit

	captureCount       int
	captureWindowStart time.Time
}

// NewManager creates a manager. sender may be nil, in which case hits are only
// counted. maxPerSecond < 1 selects DefaultMaxHitsPerSecond.
func NewManager(sessionID string, sender Sender, maxPerSecond int) *Manager {
	if maxPerSecond < 1 {
		maxPerSecond = DefaultMaxHitsPerSecond
	}
	return &Manager{
		sessionID:          sessionID,
		sender:             sender,
		maxPerSecond:       maxPerSecond,
		hits:               make(map[string]*Hit),
		captureWindowStart: time.Now(),
	}
}

// Record counts a hit at site and forwards it unless the rate limit is reached.
func (m *Manager) Record(site Site) {
	now := time.Now()
	loc := site.Location()

	m.mu.Lock()
	hit, ok := m.hits[loc]
	if !ok {
		hit = &Hit{ID: uuid.New().String(), Location: loc, FirstHit: now}
		m.hits[loc] = hit
	}
	hit.Count++
	hit.LastHit = now
	count := hit.Count
	id := hit.ID
	send := m.sender != nil && m.rateLimitOk(now)
	m.mu.Unlock()

	if !send {
		return
	}

	m.sender.SendBreakpointHit(&HitEvent{
		ID:           id,
		SessionID:    m.sessionID,
		Location:     loc,
		Function:     site.Function,
		HitCount:     count,
		PID:          os.Getpid(),
		TID:          threadID(),
		CapturedAt:   now.UTC().Format(time.RFC3339Nano),
		ScriptFrames: site.ScriptFrames,
		NativeFrames: site.NativeFrames,
		Params:       site.Params,
		Globals:      site.Globals,
		Source:       site.Source,
	})
}

// Hits returns a snapshot of all hit records sorted by location.
func (m *Manager) Hits() []Hit {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Hit, 0, len(m.hits))
	for _, h := range m.hits {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// Reset drops all hit records.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.hits = make(map[string]*Hit)
	m.mu.Unlock()
}

// rateLimitOk must be called with m.mu held.
func (m *Manager) rateLimitOk(now time.Time) bool {
	if now.Sub(m.captureWindowStart) >= time.Second {
		m.captureCount = 0
		m.captureWindowStart = now
	}

	if m.captureCount >= m.maxPerSecond {
		Log.Debug("hit rate limit reached, skipping event")
		return false
	}

	m.captureCount++
	return true
}
