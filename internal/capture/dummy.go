package capture

import (
	"context"
	"sync"

	"github.com/feschber/lan-mouse/internal/event"
)

// dummy is the backend of last resort: it never produces capture
// events on its own (nothing local to capture), but it fully honors
// the Release/Terminate/pressed-key contract so the core behaves
// identically whether or not a real backend is present. Programmatic
// injection for tests is exposed via Inject.
type dummy struct {
	mu      sync.Mutex
	events  chan event.Capture
	pressed map[uint32]struct{}
	done    bool
}

func newDummy(_ context.Context) (Backend, error) {
	return &dummy{
		events:  make(chan event.Capture, 1024),
		pressed: make(map[uint32]struct{}),
	}, nil
}

func (d *dummy) Name() string { return "dummy" }

func (d *dummy) Events() <-chan event.Capture { return d.events }

func (d *dummy) Release() error { return nil }

// Inject lets a test (or a future real backend sharing this struct's
// bookkeeping) feed a capture event through the dummy backend,
// tracking pressed keys the same way a real backend would.
func (d *dummy) Inject(e event.Capture) {
	d.mu.Lock()
	if e.Kind == event.CaptureKey {
		if e.Pressed {
			d.pressed[e.Code] = struct{}{}
		} else {
			delete(d.pressed, e.Code)
		}
	}
	done := d.done
	d.mu.Unlock()
	if done {
		return
	}
	select {
	case d.events <- e:
	default:
		// bounded queue full: drop oldest-preferred semantics are the
		// session-task's job on its inbound channel; here we simply
		// drop the newest to avoid blocking the injector.
	}
}

func (d *dummy) Terminate() error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return nil
	}
	d.done = true
	pressed := make([]uint32, 0, len(d.pressed))
	for k := range d.pressed {
		pressed = append(pressed, k)
	}
	d.pressed = make(map[uint32]struct{})
	d.mu.Unlock()

	for _, code := range pressed {
		d.events <- event.Capture{Kind: event.CaptureKey, Code: code, Pressed: false}
	}
	close(d.events)
	return nil
}
