// Package capture defines the capture adapter contract (C5): a thin,
// OS-agnostic interface to a pluggable input-capture backend. Real
// backends (wlroots layer-shell, libei, X11, Windows low-level hooks,
// macOS event taps) are out of scope here — spec.md §1 treats them as
// external collaborators behind this interface; only the contract and
// a dummy fallback backend live in this module.
package capture

import (
	"context"
	"fmt"
	"log"

	"github.com/feschber/lan-mouse/internal/event"
)

// Backend is the capability contract any capture implementation must
// satisfy (spec §4.5).
type Backend interface {
	// Events returns a channel of captured input events. The channel
	// is closed when the backend terminates.
	Events() <-chan event.Capture

	// Release hints that the session returned to local control; the
	// backend may release any pointer lock it holds.
	Release() error

	// Terminate stops the stream and releases all resources. The
	// backend must emit a synthetic key-up capture event for every key
	// it previously emitted key-down for, so the core never observes
	// an unmatched down (spec §4.5).
	Terminate() error

	// Name identifies the backend for logging.
	Name() string
}

// Candidate constructs a Backend, or returns an error if this backend
// cannot initialize in the current environment.
type Candidate func(ctx context.Context) (Backend, error)

// defaultOrder is the backend priority order from spec §4.5: libei ->
// layer-shell -> X11 -> Windows -> macOS -> dummy. Only the dummy
// fallback has a concrete implementation in this module; platform
// backends register themselves via RegisterCandidate from
// build-tag-guarded files.
var defaultOrder []namedCandidate

type namedCandidate struct {
	name string
	ctor Candidate
}

// RegisterCandidate adds a named backend candidate to the selection
// order, used by platform-specific files to participate in Create's
// priority search without this package needing build tags itself.
func RegisterCandidate(name string, ctor Candidate) {
	defaultOrder = append(defaultOrder, namedCandidate{name: name, ctor: ctor})
}

// Create tries each registered candidate in registration order,
// returning the first that initializes successfully, logging
// failures along the way, and falling back to the dummy backend if
// every candidate fails (spec §4.5, §7: backend init failure triggers
// fallback to the next backend).
func Create(ctx context.Context) (Backend, error) {
	for _, c := range defaultOrder {
		b, err := c.ctor(ctx)
		if err == nil {
			log.Printf("capture: using backend %q", b.Name())
			return b, nil
		}
		log.Printf("capture: backend %q unavailable: %v", c.name, err)
	}
	b, err := newDummy(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: no backend available, even dummy: %w", err)
	}
	log.Printf("capture: using backend %q", b.Name())
	return b, nil
}
