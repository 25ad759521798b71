// Command lan-mouse-tray is the system tray frontend: it connects to a
// running lan-mouse daemon over the local IPC socket, lists the
// configured peers once at startup, and renders session state as the
// tray tooltip (spec.md §7's event stream driving a desktop surface).
package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/feschber/lan-mouse/internal/ipc"
	"github.com/feschber/lan-mouse/internal/tray"
)

func main() {
	addr := flag.String("ipc", ipc.DefaultAddr, "daemon's IPC address")
	flag.Parse()

	client := ipc.NewClient(*addr)

	t := tray.New("lan-mouse", "lan-mouse: connecting...")

	menu := newPeerMenu(t, client)
	client.OnPeerState = menu.update
	client.OnSessionState = func(s ipc.SessionStateChanged) {
		t.SetTooltip(fmt.Sprintf("lan-mouse: %s", s.State))
	}
	client.OnError = func(e ipc.ErrorNotice) {
		log.Printf("lan-mouse-tray: %s: %s", e.Kind, e.Message)
	}

	go client.Run()
	go populateInitialPeers(client, menu)

	t.AddSeparator()
	t.AddMenuItem("Quit", func() {
		client.Close()
		t.Stop()
	})

	t.Run()
}

// populateInitialPeers issues one `list` command once the client
// connects (retrying every 500ms for up to 10s), since the broadcast
// stream only carries state transitions after that point, not the peer
// set as it stood before the tray attached.
func populateInitialPeers(client *ipc.Client, menu *peerMenu) {
	var resp ipc.CommandResponse
	var err error
	for attempt := 0; attempt < 20; attempt++ {
		resp, err = client.Command(ipc.CommandRequest{Verb: "list"})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		log.Printf("lan-mouse-tray: initial list: %v", err)
		return
	}
	for _, p := range resp.Peers {
		menu.update(ipc.PeerStateChanged{
			Handle:   p.Handle,
			Hostname: p.Hostname,
			Position: p.Position,
			Active:   p.Active,
			Alive:    p.Alive,
		})
	}
}

// peerMenu keeps one tray menu item per peer handle, toggling
// activate/deactivate on click and its checked state on PeerState
// updates. The systray wrapper has no item-removal primitive, so a
// peer handle seen once keeps its menu slot for the process lifetime.
type peerMenu struct {
	tray   *tray.Tray
	client *ipc.Client

	mu     sync.Mutex
	items  map[uint32]int
	active map[uint32]bool
}

func newPeerMenu(t *tray.Tray, client *ipc.Client) *peerMenu {
	return &peerMenu{
		tray:   t,
		client: client,
		items:  make(map[uint32]int),
		active: make(map[uint32]bool),
	}
}

func (m *peerMenu) update(p ipc.PeerStateChanged) {
	m.mu.Lock()
	id, known := m.items[p.Handle]
	m.active[p.Handle] = p.Active
	m.mu.Unlock()

	if known {
		m.tray.SetItemChecked(id, p.Active)
		return
	}

	handle := p.Handle
	id = m.tray.AddMenuItem(peerLabel(p), func() {
		m.mu.Lock()
		wasActive := m.active[handle]
		m.mu.Unlock()
		verb := "activate"
		if wasActive {
			verb = "deactivate"
		}
		if _, err := m.client.Command(ipc.CommandRequest{Verb: verb, Handle: handle}); err != nil {
			log.Printf("lan-mouse-tray: %s %d: %v", verb, handle, err)
		}
	})
	m.mu.Lock()
	m.items[p.Handle] = id
	m.mu.Unlock()
	m.tray.SetItemChecked(id, p.Active)
}

func peerLabel(p ipc.PeerStateChanged) string {
	if p.Hostname != "" {
		return fmt.Sprintf("%s (%s)", p.Hostname, p.Position)
	}
	return fmt.Sprintf("peer %d (%s)", p.Handle, p.Position)
}
