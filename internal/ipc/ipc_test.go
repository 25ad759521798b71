package ipc

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/session"
)

// fakeSession services commands the way Session.Run's handleCommand
// would, just enough to exercise the hub/client wire format.
func fakeSession(t *testing.T, commands <-chan session.Command) {
	t.Helper()
	go func() {
		for cmd := range commands {
			switch cmd.Kind {
			case session.CmdList:
				cmd.Reply <- session.CommandReply{Peers: []client.Snapshot{
					{Handle: 7, Spec: client.Spec{Hostname: "desk2"}},
				}}
			case session.CmdActivate:
				cmd.Reply <- session.CommandReply{Handle: cmd.Handle}
			default:
				cmd.Reply <- session.CommandReply{Err: errUnknownVerb("unhandled in test")}
			}
		}
	}()
}

func startTestServer(t *testing.T) (addr string, commands chan session.Command) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	commands = make(chan session.Command, 8)
	srv := NewServer(commands)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx, addr)
	// give the listener a moment to bind before the client dials.
	time.Sleep(50 * time.Millisecond)
	return addr, commands
}

func TestClientListRoundTrip(t *testing.T) {
	addr, commands := startTestServer(t)
	fakeSession(t, commands)

	c := NewClient(addr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Command(CommandRequest{Verb: "list"})
	if err != nil {
		t.Fatalf("Command(list): %v", err)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].Hostname != "desk2" {
		t.Errorf("Command(list) = %+v, want one desk2 peer", resp.Peers)
	}
}

func TestClientActivateEchoesHandle(t *testing.T) {
	addr, commands := startTestServer(t)
	fakeSession(t, commands)

	c := NewClient(addr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Command(CommandRequest{Verb: "activate", Handle: 7})
	if err != nil {
		t.Fatalf("Command(activate): %v", err)
	}
	if resp.Handle != 7 {
		t.Errorf("Command(activate).Handle = %d, want 7", resp.Handle)
	}
}

func TestClientReceivesBroadcastPeerState(t *testing.T) {
	commands := make(chan session.Command, 1)
	hub := NewHub(commands)
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", hub.ServeHTTP)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	httpSrv := &http.Server{Handler: mux}
	go httpSrv.Serve(ln)
	t.Cleanup(func() { httpSrv.Close() })

	c := NewClient(ln.Addr().String())
	received := make(chan PeerStateChanged, 1)
	c.OnPeerState = func(p PeerStateChanged) { received <- p }
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	time.Sleep(50 * time.Millisecond)

	hub.PublishPeerState(client.Snapshot{Handle: 3, Spec: client.Spec{Hostname: "desk3"}})

	select {
	case p := <-received:
		if p.Hostname != "desk3" {
			t.Errorf("received peer state hostname = %q, want desk3", p.Hostname)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast peer state")
	}
}

func TestToSessionCommandRejectsUnknownVerb(t *testing.T) {
	if _, err := toSessionCommand(CommandRequest{Verb: "levitate"}); err == nil {
		t.Error("toSessionCommand accepted an unknown verb")
	}
}

func TestToSessionCommandParsesConnect(t *testing.T) {
	cmd, err := toSessionCommand(CommandRequest{
		Verb:     "connect",
		Hostname: "desk2",
		IPs:      []string{"10.0.0.5"},
		Port:     4242,
		Position: "right",
	})
	if err != nil {
		t.Fatalf("toSessionCommand: %v", err)
	}
	if cmd.Kind != session.CmdAddPeer || cmd.Spec.Hostname != "desk2" || len(cmd.Spec.Candidates) != 1 {
		t.Errorf("toSessionCommand(connect) = %+v, want an AddPeer command for desk2", cmd)
	}
}
