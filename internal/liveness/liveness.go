// Package liveness implements the per-peer liveness tracker (C4): it
// sends pings on a timer, consumes a pong stream, and derives
// Alive/Unreachable transitions with an RTT estimate.
package liveness

import (
	"sync"
	"time"

	"github.com/feschber/lan-mouse/internal/client"
)

const (
	// PingActive is the ping interval while the session is actively
	// forwarding to a peer.
	PingActive = 500 * time.Millisecond
	// PingIdle is the ping interval while idle.
	PingIdle = 5 * time.Second
	// Dead is the no-pong timeout that demotes an active peer to
	// Unreachable.
	Dead = 2 * time.Second
	// rttAlpha is the EWMA smoothing factor (1/8, spec §4.4).
	rttAlpha = 1.0 / 8.0
)

// Status is one peer's liveness state machine: Unknown -> Alive <->
// Unreachable.
type Status uint8

const (
	Unknown Status = iota
	Alive
	Unreachable
)

type peerTiming struct {
	status       Status
	lastPong     time.Time
	pingSentAt   time.Time
	rtt          float64 // seconds
}

// UnreachableFunc is invoked (on the goroutine that calls
// CheckDeadline) the moment a peer transitions Alive -> Unreachable.
type UnreachableFunc func(h client.Handle)

// Tracker drives liveness purely from a timer and an externally fed
// pong stream; it never blocks on I/O itself (spec §4.4).
type Tracker struct {
	mu    sync.Mutex
	peers map[client.Handle]*peerTiming

	onUnreachable UnreachableFunc
}

// New creates a tracker. onUnreachable is called synchronously from
// CheckDeadline whenever a peer becomes unreachable; the callback must
// not block.
func New(onUnreachable UnreachableFunc) *Tracker {
	return &Tracker{
		peers:         make(map[client.Handle]*peerTiming),
		onUnreachable: onUnreachable,
	}
}

// Track begins tracking a peer (idempotent).
func (t *Tracker) Track(h client.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[h]; !ok {
		t.peers[h] = &peerTiming{status: Unknown}
	}
}

// Untrack stops tracking a peer (on removal).
func (t *Tracker) Untrack(h client.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, h)
}

// NotePingSent records that a ping was just sent to h, starting the
// dead-man's timer for the active-session case.
func (t *Tracker) NotePingSent(h client.Handle, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[h]; ok {
		p.pingSentAt = at
	}
}

// OnPong records a pong from h at time now, updating RTT (EWMA) and
// promoting the peer to Alive.
func (t *Tracker) OnPong(h client.Handle, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[h]
	if !ok {
		return
	}
	if !p.pingSentAt.IsZero() {
		sample := now.Sub(p.pingSentAt).Seconds()
		if p.rtt == 0 {
			p.rtt = sample
		} else {
			p.rtt = p.rtt*(1-rttAlpha) + sample*rttAlpha
		}
	}
	p.lastPong = now
	p.status = Alive
}

// RTT returns the current EWMA round-trip estimate for h, in seconds.
func (t *Tracker) RTT(h client.Handle) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[h]; ok {
		return p.rtt
	}
	return 0
}

// Status returns the current liveness status of h.
func (t *Tracker) Status(h client.Handle) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[h]; ok {
		return p.status
	}
	return Unknown
}

// CheckDeadline examines every Alive peer whose last ping was sent
// at least Dead ago with no subsequent pong, demoting it to
// Unreachable and invoking onUnreachable. The session calls it on
// every tick of its Run loop, whatever the session state.
func (t *Tracker) CheckDeadline(now time.Time) {
	var newlyUnreachable []client.Handle

	t.mu.Lock()
	for h, p := range t.peers {
		if p.status != Alive {
			continue
		}
		if p.pingSentAt.IsZero() {
			continue
		}
		if p.lastPong.After(p.pingSentAt) || p.lastPong.Equal(p.pingSentAt) {
			continue // already got a pong for the latest ping
		}
		if now.Sub(p.pingSentAt) >= Dead {
			p.status = Unreachable
			newlyUnreachable = append(newlyUnreachable, h)
		}
	}
	t.mu.Unlock()

	if t.onUnreachable != nil {
		for _, h := range newlyUnreachable {
			t.onUnreachable(h)
		}
	}
}
