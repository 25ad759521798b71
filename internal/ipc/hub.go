package ipc

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
	"github.com/feschber/lan-mouse/internal/session"
)

func parseIPs(raw []string) ([]net.IP, error) {
	out := make([]net.IP, 0, len(raw))
	for _, s := range raw {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("ipc: invalid ip %q", s)
		}
		out = append(out, ip)
	}
	return out, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the socket is bound to localhost only (see Server.Run); any
	// origin is fine for a same-host frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts session events to every connected frontend and
// forwards command frames into the session state machine. Grounded on
// the teacher's WSManager (register/unregister/broadcast channels,
// one goroutine owning the client set).
type Hub struct {
	commands chan<- session.Command

	clientsMu sync.RWMutex
	clients   map[*wsClient]bool

	broadcast  chan Message
	register   chan *wsClient
	unregister chan *wsClient

	nextID uint64
}

// NewHub creates a hub that forwards commands onto commands.
func NewHub(commands chan<- session.Command) *Hub {
	return &Hub{
		commands:   commands,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run is the hub's own goroutine; it owns the client set exclusively.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = true
			h.clientsMu.Unlock()
		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.clientsMu.Unlock()
		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

func (h *Hub) broadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ipc: marshal broadcast: %v", err)
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// PublishPeerState is the session's OnPeerChange callback wiring
// point (spec.md §7).
func (h *Hub) PublishPeerState(s client.Snapshot) {
	payload, _ := json.Marshal(PeerStateChanged{
		Handle:             uint32(s.Handle),
		Hostname:           s.Spec.Hostname,
		Position:           s.Spec.Position.String(),
		Active:             s.State.Active,
		Alive:              s.State.Alive,
		EmulationAvailable: s.State.EmulationAvailable,
		RTT:                s.State.RTT,
	})
	h.broadcast <- Message{Type: TypePeerStateChanged, Payload: payload}
}

// PublishSessionState is the session's OnSessionChange callback wiring
// point.
func (h *Hub) PublishSessionState(c session.StateChange) {
	payload, _ := json.Marshal(SessionStateChanged{State: c.State.String(), Peer: uint32(c.Peer)})
	h.broadcast <- Message{Type: TypeSessionStateChanged, Payload: payload}
}

// PublishError is the session's OnError callback wiring point.
func (h *Hub) PublishError(n session.ErrorNotice) {
	payload, _ := json.Marshal(ErrorNotice{Kind: n.Kind, Message: n.Message})
	h.broadcast <- Message{Type: TypeErrorNotice, Payload: payload}
}

// ServeHTTP upgrades one connection and starts its pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ipc: upgrade failed: %v", err)
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ipc: read error: %v", err)
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleFrame(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("ipc: invalid frame: %v", err)
		return
	}
	if msg.Type != TypeCommand {
		return
	}
	var req CommandRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("ipc: invalid command payload: %v", err)
		return
	}
	cmd, err := toSessionCommand(req)
	if err != nil {
		c.replyError(msg.ID, err)
		return
	}
	reply := make(chan session.CommandReply, 1)
	cmd.Reply = reply
	c.hub.commands <- cmd
	go func() {
		r := <-reply
		c.sendReply(msg.ID, r)
	}()
}

func toSessionCommand(req CommandRequest) (session.Command, error) {
	switch req.Verb {
	case "connect":
		pos, err := event.ParsePosition(req.Position)
		if err != nil {
			return session.Command{}, err
		}
		ips, err := parseIPs(req.IPs)
		if err != nil {
			return session.Command{}, err
		}
		return session.Command{
			Kind: session.CmdAddPeer,
			Spec: client.Spec{
				Hostname:   req.Hostname,
				Candidates: ips,
				Port:       req.Port,
				Position:   pos,
			},
		}, nil
	case "list":
		return session.Command{Kind: session.CmdList}, nil
	case "activate":
		return session.Command{Kind: session.CmdActivate, Handle: client.Handle(req.Handle)}, nil
	case "deactivate":
		return session.Command{Kind: session.CmdDeactivate, Handle: client.Handle(req.Handle)}, nil
	case "remove":
		return session.Command{Kind: session.CmdRemovePeer, Handle: client.Handle(req.Handle)}, nil
	case "reassign":
		pos, err := event.ParsePosition(req.Position)
		if err != nil {
			return session.Command{}, err
		}
		return session.Command{Kind: session.CmdReassign, Handle: client.Handle(req.Handle), Position: pos}, nil
	default:
		return session.Command{}, errUnknownVerb(req.Verb)
	}
}

type errUnknownVerb string

func (e errUnknownVerb) Error() string { return "ipc: unknown command verb " + string(e) }

func (c *wsClient) replyError(id uint64, err error) {
	c.sendReply(id, session.CommandReply{Err: err})
}

func (c *wsClient) sendReply(id uint64, r session.CommandReply) {
	resp := CommandResponse{Handle: uint32(r.Handle)}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	for _, p := range r.Peers {
		resp.Peers = append(resp.Peers, PeerState{
			Handle:   uint32(p.Handle),
			Hostname: p.Spec.Hostname,
			Position: p.Spec.Position.String(),
			Active:   p.State.Active,
			Alive:    p.State.Alive,
		})
	}
	payload, _ := json.Marshal(resp)
	data, _ := json.Marshal(Message{Type: TypeCommandReply, ID: id, Payload: payload})
	select {
	case c.send <- data:
	default:
	}
}
