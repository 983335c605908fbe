package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	conn  string
	frame Frame
}

// recordingTransport keeps every frame so tests can assert on fan-out.
type recordingTransport struct {
	mu     sync.Mutex
	frames []delivered
}

func (r *recordingTransport) Deliver(connID string, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, delivered{conn: connID, frame: f})
}

func (r *recordingTransport) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// events lists the event names delivered to conn, in order.
func (r *recordingTransport) events(conn string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, d := range r.frames {
		if d.conn == conn {
			names = append(names, d.frame.Event)
		}
	}
	return names
}

// last decodes the most recent event of the given name delivered to conn.
func (r *recordingTransport) last(t *testing.T, conn, event string, dst any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		d := r.frames[i]
		if d.conn == conn && d.frame.Event == event {
			require.NoError(t, json.Unmarshal(d.frame.Data, dst))
			return
		}
	}
	t.Fatalf("no %s delivered to %s", event, conn)
}

func (r *recordingTransport) count(conn, event string) int {
	n := 0
	for _, name := range r.events(conn) {
		if name == event {
			n++
		}
	}
	return n
}

// fakeClock advances one second on every call so timestamps are strictly
// increasing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *recordingTransport) {
	t.Helper()
	transport := &recordingTransport{}
	if cfg.Now == nil {
		cfg.Now = newFakeClock().Now
	}
	if cfg.NewID == nil {
		cfg.NewID = sequentialIDs()
	}
	cfg.Logger = zerolog.Nop()
	return NewCoordinator(transport, cfg), transport
}

func frame(t *testing.T, event string, payload any) Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Frame{Event: event, Data: data}
}
