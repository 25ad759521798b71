// Package client implements the client registry (C2): the set of
// configured peers, their network endpoints, and per-peer mutable
// runtime state.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/feschber/lan-mouse/internal/event"
)

// Handle is a stable, small-integer peer identifier. Handles are never
// reused within a process lifetime (spec §3).
type Handle uint32

// Spec is the immutable configuration of a peer, as loaded from config
// or an IPC `connect` command.
type Spec struct {
	Hostname           string
	Candidates         []net.IP // candidate addresses, insertion order
	Port               int
	Position           event.Position
	ActivateOnStartup  bool
	OnEnterCommand     string // optional shell command run when this peer becomes active (§13)
}

// State is the mutable runtime substate of a peer (spec §3).
type State struct {
	Active              bool
	Alive                bool
	EmulationAvailable   bool // published in peer-state-changed events; nothing in the daemon sets it (§13)
	CurrentAddr          *net.UDPAddr
	PressedKeys          map[uint32]struct{}
	OutstandingKeymapReq bool
	RTT                  float64 // EWMA, seconds
}

// Peer is a registry entry: immutable spec plus mutable state.
type Peer struct {
	Handle Handle
	Spec   Spec
	State  State
}

// Snapshot is a read-only copy of a Peer safe to pass across goroutine
// boundaries (spec §5's "other readers take a snapshot at message
// boundaries").
type Snapshot struct {
	Handle Handle
	Spec   Spec
	State  State
}

// Registry holds the set of peers. Per spec §5, mutation happens only
// on the owning task (session-task); it is not internally
// lock-free — the mutex exists so read-only Snapshot/List calls from
// other goroutines (e.g. the IPC server) never race with mutation, but
// session-task itself should be the only mutator.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	peers   map[Handle]*Peer
	order   []Handle // insertion order, for List()
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[Handle]*Peer)}
}

// Add registers a new peer and returns its handle.
func (r *Registry) Add(spec Spec) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.peers[h] = &Peer{
		Handle: h,
		Spec:   spec,
		State:  State{PressedKeys: make(map[uint32]struct{})},
	}
	r.order = append(r.order, h)
	return h
}

// Remove deletes a peer. Returns false if the handle was unknown.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[h]; !ok {
		return false
	}
	delete(r.peers, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns a snapshot of every peer, in insertion order.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, h := range r.order {
		p := r.peers[h]
		out = append(out, snapshotOf(p))
	}
	return out
}

// Resolve returns a snapshot of one peer.
func (r *Registry) Resolve(h Handle) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[h]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(p), true
}

// Update applies mutator to the peer's state under the registry lock.
// mutator must not block or re-enter the registry.
func (r *Registry) Update(h Handle, mutator func(*State)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[h]
	if !ok {
		return fmt.Errorf("client: unknown handle %d", h)
	}
	mutator(&p.State)
	return nil
}

func snapshotOf(p *Peer) Snapshot {
	pk := make(map[uint32]struct{}, len(p.State.PressedKeys))
	for k := range p.State.PressedKeys {
		pk[k] = struct{}{}
	}
	s := p.State
	s.PressedKeys = pk
	return Snapshot{Handle: p.Handle, Spec: p.Spec, State: s}
}
