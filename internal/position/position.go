// Package position implements the position map (C3): it maps a
// screen edge and cursor-entry coordinate to a peer handle.
package position

import (
	"sync"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
)

// AliveChecker reports whether a peer handle is currently alive. The
// registry's Resolve satisfies this.
type AliveChecker interface {
	Resolve(client.Handle) (client.Snapshot, bool)
}

// Map holds, per edge, the ordered list of peer handles assigned to
// it. Reassignment of a peer's edge is atomic (spec §4.3).
type Map struct {
	mu    sync.Mutex
	edges map[event.Position][]client.Handle
}

// New creates an empty position map.
func New() *Map {
	return &Map{edges: make(map[event.Position][]client.Handle)}
}

// Assign places peer h at edge, appending it to the edge's order if
// not already present, or replaces entries via Reassign.
func (m *Map) Assign(pos event.Position, h client.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.edges[pos] {
		if existing == h {
			return
		}
	}
	m.edges[pos] = append(m.edges[pos], h)
}

// Reassign atomically moves peer h from whatever edge it currently
// occupies to newPos (§13: explicit runtime position reassignment).
func (m *Map) Reassign(h client.Handle, newPos event.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pos, handles := range m.edges {
		for i, existing := range handles {
			if existing == h {
				m.edges[pos] = append(handles[:i], handles[i+1:]...)
			}
		}
	}
	m.edges[newPos] = append(m.edges[newPos], h)
}

// Remove deletes h from whichever edge holds it.
func (m *Map) Remove(h client.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pos, handles := range m.edges {
		for i, existing := range handles {
			if existing == h {
				m.edges[pos] = append(handles[:i], handles[i+1:]...)
				return
			}
		}
	}
}

// Select returns the peer that should receive control when the cursor
// leaves at edge pos, per spec §4.3: only alive peers are candidates;
// among those, the first in insertion order wins. Returns false if no
// alive peer is assigned to pos.
func (m *Map) Select(pos event.Position, alive AliveChecker) (client.Handle, bool) {
	m.mu.Lock()
	handles := append([]client.Handle(nil), m.edges[pos]...)
	m.mu.Unlock()

	for _, h := range handles {
		snap, ok := alive.Resolve(h)
		if ok && snap.State.Alive {
			return h, true
		}
	}
	return 0, false
}
