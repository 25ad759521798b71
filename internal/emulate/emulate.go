// Package emulate defines the emulation adapter contract (C6): a thin
// interface to a pluggable input-emulation backend. Real backends
// (virtual pointer/keyboard, XTest, SendInput, CGEvent) are out of
// scope (spec.md §1); only the contract and a dummy fallback live
// here.
package emulate

import (
	"context"
	"fmt"
	"log"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
)

// Backend is the capability contract any emulation implementation
// must satisfy (spec §4.6).
type Backend interface {
	// Create prepares per-peer emulation state for handle h.
	Create(h client.Handle) error

	// Consume plays one decoded event for handle h. Non-blocking and
	// best-effort: dropped events are acceptable.
	Consume(h client.Handle, e event.Datagram)

	// Destroy tears down per-peer state for h, synthesizing a key-up
	// for every key previously pressed for h.
	Destroy(h client.Handle)

	// Terminate stops the backend entirely, synthesizing key-ups for
	// every still-pressed key across all peers.
	Terminate()

	// Available reports whether emulation is currently usable. The
	// session does not call it, and its result is not copied into
	// client.State.EmulationAvailable.
	Available() bool

	// Name identifies the backend for logging.
	Name() string
}

// Inspectable is implemented by the dummy backend (and may be
// implemented by others) to expose played events for tests.
type Inspectable interface {
	PlayedEvents() []PlayedEvent
}

// Candidate constructs a Backend or reports it cannot initialize here.
type Candidate func(ctx context.Context) (Backend, error)

var defaultOrder []namedCandidate

type namedCandidate struct {
	name string
	ctor Candidate
}

// RegisterCandidate registers a backend candidate, used by
// platform-specific build-tag-guarded files.
func RegisterCandidate(name string, ctor Candidate) {
	defaultOrder = append(defaultOrder, namedCandidate{name: name, ctor: ctor})
}

// Create tries each candidate in order, falling back to the dummy
// backend, matching capture.Create's selection policy (spec §4.6
// mirrors §4.5).
func Create(ctx context.Context) (Backend, error) {
	for _, c := range defaultOrder {
		b, err := c.ctor(ctx)
		if err == nil {
			log.Printf("emulate: using backend %q", b.Name())
			return b, nil
		}
		log.Printf("emulate: backend %q unavailable: %v", c.name, err)
	}
	b, err := newDummy(ctx)
	if err != nil {
		return nil, fmt.Errorf("emulate: no backend available, even dummy: %w", err)
	}
	log.Printf("emulate: using backend %q", b.Name())
	return b, nil
}
