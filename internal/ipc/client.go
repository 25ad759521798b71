package ipc

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a thin IPC consumer for cmd/lan-mouse-ctl and
// cmd/lan-mouse-tray: connect once, issue request/reply commands,
// and/or subscribe to the broadcast event stream. Grounded on the
// teacher's network.WSClient (reconnect loop, read/write pumps,
// callback fields).
type Client struct {
	addr string

	mu   sync.Mutex
	conn *websocket.Conn

	pendingMu sync.Mutex
	pending   map[uint64]chan CommandResponse
	nextID    uint64

	// OnPeerState, OnSessionState, OnError mirror the event stream of
	// spec.md §7; any may be nil.
	OnPeerState    func(PeerStateChanged)
	OnSessionState func(SessionStateChanged)
	OnError        func(ErrorNotice)

	closed atomic.Bool
	done   chan struct{}
}

// NewClient creates a client bound to addr (typically
// ipc.DefaultAddr).
func NewClient(addr string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Client{addr: addr, pending: make(map[uint64]chan CommandResponse), done: make(chan struct{})}
}

// Connect dials once, synchronously, for the one-shot CLI use case
// (spec.md §6's ctl surface issues exactly one command and exits).
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ipc"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("ipc: dial %s: %w", c.addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readPump(conn)
	return nil
}

// Run maintains a reconnecting connection for long-lived frontends
// (the tray), matching the teacher's WSClient.loop retry-after-5s
// shape.
func (c *Client) Run() {
	for {
		if err := c.Connect(); err != nil {
			log.Printf("ipc client: %v", err)
		} else {
			c.waitForDisconnect()
		}
		select {
		case <-c.done:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *Client) waitForDisconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			cur := c.conn
			c.mu.Unlock()
			if cur != conn {
				return
			}
		}
	}
}

// Close stops Run's reconnect loop and the current connection.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ipc client: invalid frame: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case TypeCommandReply:
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendingMu.Unlock()
		if !ok {
			return
		}
		var resp CommandResponse
		_ = json.Unmarshal(msg.Payload, &resp)
		ch <- resp
	case TypePeerStateChanged:
		if c.OnPeerState != nil {
			var p PeerStateChanged
			_ = json.Unmarshal(msg.Payload, &p)
			c.OnPeerState(p)
		}
	case TypeSessionStateChanged:
		if c.OnSessionState != nil {
			var s SessionStateChanged
			_ = json.Unmarshal(msg.Payload, &s)
			c.OnSessionState(s)
		}
	case TypeErrorNotice:
		if c.OnError != nil {
			var e ErrorNotice
			_ = json.Unmarshal(msg.Payload, &e)
			c.OnError(e)
		}
	}
}

// Command sends one request and blocks for its reply or timeout.
func (c *Client) Command(req CommandRequest) (CommandResponse, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return CommandResponse{}, fmt.Errorf("ipc: not connected")
	}

	id := atomic.AddUint64(&c.nextID, 1)
	reply := make(chan CommandResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return CommandResponse{}, err
	}
	frame, err := json.Marshal(Message{Type: TypeCommand, ID: id, Payload: payload})
	if err != nil {
		return CommandResponse{}, err
	}

	c.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.mu.Unlock()
	if err != nil {
		return CommandResponse{}, fmt.Errorf("ipc: write: %w", err)
	}

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return resp, fmt.Errorf("%s", resp.Error)
		}
		return resp, nil
	case <-time.After(5 * time.Second):
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return CommandResponse{}, fmt.Errorf("ipc: command %q timed out", req.Verb)
	}
}
