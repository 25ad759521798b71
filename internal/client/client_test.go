package client

import (
	"net"
	"testing"
)

func TestAddAssignsStableIncreasingHandles(t *testing.T) {
	r := New()
	h1 := r.Add(Spec{Hostname: "a"})
	h2 := r.Add(Spec{Hostname: "b"})
	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %d and %d", h1, h2)
	}
	if h2 <= h1 {
		t.Errorf("expected increasing handles, got %d then %d", h1, h2)
	}
}

func TestRemoveThenAddNeverReusesHandle(t *testing.T) {
	r := New()
	h1 := r.Add(Spec{Hostname: "a"})
	r.Remove(h1)
	h2 := r.Add(Spec{Hostname: "b"})
	if h2 == h1 {
		t.Errorf("handle %d was reused after removal", h1)
	}
}

func TestRemoveUnknownHandleReturnsFalse(t *testing.T) {
	r := New()
	if r.Remove(999) {
		t.Error("Remove on unknown handle returned true")
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := New()
	h1 := r.Add(Spec{Hostname: "a"})
	h2 := r.Add(Spec{Hostname: "b"})
	h3 := r.Add(Spec{Hostname: "c"})
	got := r.List()
	want := []Handle{h1, h2, h3}
	if len(got) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(got), len(want))
	}
	for i, h := range want {
		if got[i].Handle != h {
			t.Errorf("List()[%d].Handle = %d, want %d", i, got[i].Handle, h)
		}
	}
}

func TestUpdateMutatesStateUnderLock(t *testing.T) {
	r := New()
	h := r.Add(Spec{Hostname: "a"})
	err := r.Update(h, func(s *State) {
		s.Alive = true
		s.RTT = 0.01
		s.CurrentAddr = &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 4242}
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, ok := r.Resolve(h)
	if !ok {
		t.Fatal("Resolve: peer not found")
	}
	if !snap.State.Alive || snap.State.RTT != 0.01 {
		t.Errorf("Resolve() state = %+v, want Alive=true RTT=0.01", snap.State)
	}
}

func TestUpdateUnknownHandleReturnsError(t *testing.T) {
	r := New()
	if err := r.Update(42, func(*State) {}); err == nil {
		t.Error("Update on unknown handle returned nil error")
	}
}

func TestSnapshotPressedKeysIsACopy(t *testing.T) {
	r := New()
	h := r.Add(Spec{Hostname: "a"})
	_ = r.Update(h, func(s *State) {
		s.PressedKeys[30] = struct{}{}
	})
	snap, _ := r.Resolve(h)
	snap.State.PressedKeys[31] = struct{}{}

	snap2, _ := r.Resolve(h)
	if _, ok := snap2.State.PressedKeys[31]; ok {
		t.Error("mutating a returned snapshot's PressedKeys leaked into the registry")
	}
	if _, ok := snap2.State.PressedKeys[30]; !ok {
		t.Error("snapshot lost a key actually held by the registry")
	}
}
