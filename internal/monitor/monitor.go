// Package monitor keeps a short history of finished control cycles and
// serves the bench debugging surfaces built from it: live echarts pages, a
// top-down scene render, and an SSE cycle tail.
//
// The monitor is a passive observer. It implements loop.CycleSink, and its
// handlers never touch the scene directly: RecordCycle runs on the loop
// goroutine, which owns the scene, and copies out everything the handlers
// need under the monitor's own lock.
package monitor

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/haptable/haptable/internal/loop"
	"github.com/haptable/haptable/internal/scene"
	"github.com/haptable/haptable/internal/stereo"
)

// DefaultRingDepth is how many finished cycles are kept for the charts and
// the tail. Under a minute of history at the default cycle rate.
const DefaultRingDepth = 1024

// CurveView is a drawable copy of one curve. Samples aliases the curve's
// cached polyline; regeneration replaces that slice rather than mutating
// it, so the alias stays valid after the scene moves on.
type CurveView struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Display   string          `json:"display"`
	Color     scene.Color     `json:"color"`
	Thickness float64         `json:"thickness_mm"`
	Visible   bool            `json:"visible"`
	Samples   []stereo.Point3 `json:"-"`
}

// SceneView is the drawable scene state as of the latest cycle.
type SceneView struct {
	XMin        float64     `json:"x_min_mm"`
	XMax        float64     `json:"x_max_mm"`
	ZMin        float64     `json:"z_min_mm"`
	ZMax        float64     `json:"z_max_mm"`
	TableHeight float64     `json:"table_height_mm"`
	Curves      []CurveView `json:"curves"`
}

// Monitor records cycles into a ring buffer and fans them out to SSE
// subscribers.
type Monitor struct {
	coords *scene.CoordinateSystem
	curves *scene.CurveSet

	mu    sync.Mutex
	ring  []loop.Cycle
	next  int
	count int
	view  SceneView

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// New returns a monitor observing the given scene. depth <= 0 selects
// DefaultRingDepth. Call before the loop starts; New reads the scene once
// so the render endpoints work before the first cycle lands.
func New(coords *scene.CoordinateSystem, curves *scene.CurveSet, depth int) *Monitor {
	if depth <= 0 {
		depth = DefaultRingDepth
	}
	m := &Monitor{
		coords:      coords,
		curves:      curves,
		ring:        make([]loop.Cycle, depth),
		subscribers: make(map[string]chan string),
	}
	m.refreshViewLocked()
	return m
}

// RecordCycle implements loop.CycleSink. The loop calls it from its own
// goroutine, which is what makes reading the scene here safe.
func (m *Monitor) RecordCycle(c loop.Cycle) {
	m.mu.Lock()
	m.ring[m.next] = c
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.refreshViewLocked()
	m.mu.Unlock()

	m.broadcast(c)
}

func (m *Monitor) refreshViewLocked() {
	v := SceneView{TableHeight: m.coords.TableHeight()}
	v.XMin, v.XMax = m.coords.XRange()
	v.ZMin, v.ZMax = m.coords.ZRange()
	for _, c := range m.curves.Curves() {
		v.Curves = append(v.Curves, CurveView{
			ID:        c.ID(),
			Name:      c.Name(),
			Display:   c.DisplayString(),
			Color:     c.Color(),
			Thickness: c.Thickness(),
			Visible:   c.Visible(),
			Samples:   c.Samples(m.coords),
		})
	}
	m.view = v
}

// Scene returns the drawable scene state as of the latest cycle.
func (m *Monitor) Scene() SceneView {
	m.mu.Lock()
	defer m.mu.Unlock()
	view := m.view
	view.Curves = append([]CurveView(nil), m.view.Curves...)
	return view
}

// Recent returns up to n cycles, oldest first. n <= 0 returns everything
// buffered.
func (m *Monitor) Recent(n int) []loop.Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]loop.Cycle, 0, n)
	start := m.next - n
	if start < 0 {
		start += len(m.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Last returns the most recent cycle, if any.
func (m *Monitor) Last() (loop.Cycle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return loop.Cycle{}, false
	}
	idx := m.next - 1
	if idx < 0 {
		idx += len(m.ring)
	}
	return m.ring[idx], true
}

// Subscribe registers an SSE consumer. Each finished cycle is delivered as
// one JSON line; a slow consumer misses cycles rather than stalling the
// loop.
func (m *Monitor) Subscribe() (string, chan string) {
	id := uuid.New().String()
	ch := make(chan string, 16)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Monitor) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

func (m *Monitor) broadcast(c loop.Cycle) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if len(m.subscribers) == 0 {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	line := string(payload)
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}
