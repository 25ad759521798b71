package emulate

import (
	"context"
	"sync"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
)

// dummy plays nothing but faithfully tracks pressed keys per handle so
// Destroy/Terminate's key-up guarantee can be observed and tested
// without a real OS backend.
type dummy struct {
	mu      sync.Mutex
	pressed map[client.Handle]map[uint32]struct{}

	// Played records every event handed to Consume, plus the synthetic
	// key-ups Destroy/Terminate emit, for tests.
	Played []PlayedEvent
}

// PlayedEvent records one played event (a Consume call or a synthetic
// key-up) for observation in tests.
type PlayedEvent struct {
	Handle client.Handle
	Event  event.Datagram
}

func newDummy(_ context.Context) (Backend, error) {
	return &dummy{pressed: make(map[client.Handle]map[uint32]struct{})}, nil
}

func (d *dummy) Name() string    { return "dummy" }
func (d *dummy) Available() bool { return true }

// PlayedEvents returns a snapshot of every event played so far
// (Consume calls and synthetic key-ups), satisfying the Inspectable
// interface.
func (d *dummy) PlayedEvents() []PlayedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PlayedEvent, len(d.Played))
	copy(out, d.Played)
	return out
}

func (d *dummy) Create(h client.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pressed[h]; !ok {
		d.pressed[h] = make(map[uint32]struct{})
	}
	return nil
}

func (d *dummy) Consume(h client.Handle, e event.Datagram) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Played = append(d.Played, PlayedEvent{Handle: h, Event: e})
	set, ok := d.pressed[h]
	if !ok {
		set = make(map[uint32]struct{})
		d.pressed[h] = set
	}
	if e.Tag == event.TagKey {
		if e.Pressed {
			set[e.Scancode] = struct{}{}
		} else {
			delete(set, e.Scancode)
		}
	}
}

func (d *dummy) Destroy(h client.Handle) {
	d.mu.Lock()
	set := d.pressed[h]
	delete(d.pressed, h)
	d.mu.Unlock()
	for code := range set {
		d.mu.Lock()
		d.Played = append(d.Played, PlayedEvent{Handle: h, Event: event.Datagram{Tag: event.TagKey, Scancode: code, Pressed: false}})
		d.mu.Unlock()
	}
}

func (d *dummy) Terminate() {
	d.mu.Lock()
	handles := make([]client.Handle, 0, len(d.pressed))
	for h := range d.pressed {
		handles = append(handles, h)
	}
	d.mu.Unlock()
	for _, h := range handles {
		d.Destroy(h)
	}
}
