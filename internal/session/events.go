package session

import (
	"net"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/event"
)

// Inbound is one decoded datagram received from the network, tagged
// with its source peer (if recognized) and raw source address (for
// the feedback-loop guard and unknown-source logging).
type Inbound struct {
	From     *net.UDPAddr
	FromPeer client.Handle
	Known    bool
	Datagram event.Datagram
}

// Command is an IPC-driven request into the session state machine
// (spec §6's CLI surface, mediated here rather than reimplemented as a
// shell).
type Command struct {
	Kind      CommandKind
	Spec      client.Spec   // AddPeer
	Handle    client.Handle // RemovePeer / Activate / Deactivate / Reassign
	Position  event.Position // Reassign
	Reply     chan CommandReply
}

// CommandKind enumerates the CLI surface of spec §6.
type CommandKind uint8

const (
	CmdAddPeer CommandKind = iota
	CmdRemovePeer
	CmdList
	CmdActivate
	CmdDeactivate
	CmdReassign
)

// CommandReply carries the result of a Command back to its issuer.
type CommandReply struct {
	Handle  client.Handle
	Peers   []client.Snapshot
	Err     error
}

// ErrorNotice is one entry of the IPC event stream's error-notice
// event (spec §7).
type ErrorNotice struct {
	Kind    string // "transport" | "peer-unreachable" | "backend" | "enter-command"
	Message string
}
