package session

import "github.com/feschber/lan-mouse/internal/client"

// State is the session state machine of spec §3/§4.7: exactly one
// value exists per process, transitions are serialized inside
// session-task.
type State uint8

const (
	// Idle: local input flows to the local OS; incoming datagrams from
	// any peer are replayed via the emulation adapter.
	Idle State = iota
	// Active: local capture events are forwarded to the bound peer;
	// local emulation is suppressed for datagrams whose source matches
	// that peer (feedback-loop guard).
	Active
	// Releasing: transient — pressed keys for the outgoing peer are
	// being drained (synthetic key-ups forwarded) before returning to
	// Idle.
	Releasing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Releasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// StateChange is delivered to frontends over the IPC event stream
// (spec §7).
type StateChange struct {
	State State
	Peer  client.Handle // meaningful when State != Idle
}
