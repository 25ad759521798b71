package position

import (
	"testing"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
)

func setAlive(t *testing.T, r *client.Registry, h client.Handle, alive bool) {
	t.Helper()
	if err := r.Update(h, func(s *client.State) { s.Alive = alive }); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestSelectReturnsFalseWhenEdgeEmpty(t *testing.T) {
	m := New()
	r := client.New()
	if _, ok := m.Select(event.Right, r); ok {
		t.Error("Select on an unassigned edge returned true")
	}
}

func TestSelectSkipsDeadPeersInInsertionOrder(t *testing.T) {
	m := New()
	r := client.New()
	hDead := r.Add(client.Spec{Hostname: "dead", Position: event.Right})
	hAlive := r.Add(client.Spec{Hostname: "alive", Position: event.Right})
	m.Assign(event.Right, hDead)
	m.Assign(event.Right, hAlive)
	setAlive(t, r, hAlive, true)

	got, ok := m.Select(event.Right, r)
	if !ok {
		t.Fatal("Select returned false with one alive peer assigned")
	}
	if got != hAlive {
		t.Errorf("Select() = %d, want the alive peer %d", got, hAlive)
	}
}

func TestSelectPrefersFirstAliveInInsertionOrder(t *testing.T) {
	m := New()
	r := client.New()
	h1 := r.Add(client.Spec{Hostname: "one", Position: event.Right})
	h2 := r.Add(client.Spec{Hostname: "two", Position: event.Right})
	h3 := r.Add(client.Spec{Hostname: "three", Position: event.Right})
	m.Assign(event.Right, h1)
	m.Assign(event.Right, h2)
	m.Assign(event.Right, h3)
	setAlive(t, r, h1, true)
	setAlive(t, r, h2, true)
	setAlive(t, r, h3, true)

	got, ok := m.Select(event.Right, r)
	if !ok || got != h1 {
		t.Errorf("Select() = %d, %v, want %d, true (first alive wins ties)", got, ok, h1)
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	m := New()
	r := client.New()
	h := r.Add(client.Spec{Hostname: "a", Position: event.Right})
	setAlive(t, r, h, true)
	m.Assign(event.Right, h)
	m.Assign(event.Right, h)

	handles := m.edges[event.Right]
	if len(handles) != 1 {
		t.Errorf("Assign called twice produced %d entries, want 1", len(handles))
	}
}

func TestReassignMovesPeerAtomically(t *testing.T) {
	m := New()
	r := client.New()
	h := r.Add(client.Spec{Hostname: "a", Position: event.Right})
	setAlive(t, r, h, true)
	m.Assign(event.Right, h)

	m.Reassign(h, event.Left)

	if _, ok := m.Select(event.Right, r); ok {
		t.Error("peer still selectable at its old edge after Reassign")
	}
	got, ok := m.Select(event.Left, r)
	if !ok || got != h {
		t.Errorf("Select(Left) after Reassign = %d, %v, want %d, true", got, ok, h)
	}
}

func TestRemoveDeletesFromItsEdge(t *testing.T) {
	m := New()
	r := client.New()
	h := r.Add(client.Spec{Hostname: "a", Position: event.Right})
	setAlive(t, r, h, true)
	m.Assign(event.Right, h)

	m.Remove(h)

	if _, ok := m.Select(event.Right, r); ok {
		t.Error("peer still selectable after Remove")
	}
}
