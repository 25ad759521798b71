// Command lan-mouse is the event-routing daemon: it binds the
// transport socket, loads the local peer configuration, and runs the
// session state machine until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/feschber/lan-mouse/internal/capture"
	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/config"
	"github.com/feschber/lan-mouse/internal/emulate"
	"github.com/feschber/lan-mouse/internal/event"
	"github.com/feschber/lan-mouse/internal/ipc"
	"github.com/feschber/lan-mouse/internal/liveness"
	"github.com/feschber/lan-mouse/internal/position"
	"github.com/feschber/lan-mouse/internal/resolver"
	"github.com/feschber/lan-mouse/internal/session"
	"github.com/feschber/lan-mouse/internal/transport"
)

const version = "0.1.0"

var (
	showVer = flag.Bool("version", false, "print version and exit")
	daemon  = flag.Bool("daemon", false, "headless mode (this binary starts no GUI either way; stdio stays attached)")
	port    = flag.Int("port", 0, "UDP/TCP port to bind (overrides config.toml)")
	ipcAddr = flag.String("ipc", ipc.DefaultAddr, "loopback address for the local IPC endpoint")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("lan-mouse %s\n", version)
		return
	}
	if *daemon {
		log.SetFlags(log.LstdFlags)
	}

	cfgMgr, err := config.NewManager()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()

	bindPort := cfg.Port
	if *port != 0 {
		bindPort = *port
	}
	if bindPort == 0 {
		bindPort = config.DefaultPort
	}

	tp, err := transport.Listen(bindPort)
	if err != nil {
		log.Printf("transport: %v", err)
		os.Exit(2)
	}

	registry := client.New()
	posMap := position.New()

	captureBackend, err := capture.Create(context.Background())
	if err != nil {
		log.Printf("capture: %v", err)
		os.Exit(3)
	}
	emulateBackend, err := emulate.Create(context.Background())
	if err != nil {
		log.Printf("emulate: %v", err)
		os.Exit(3)
	}

	sess := session.New(registry, posMap, nil, captureBackend, emulateBackend, tp, transport.RequestKeymap, cfg.ReleaseBind)
	tracker := liveness.New(func(h client.Handle) {
		// handleUnreachable runs on the session goroutine via this
		// indirection: CheckDeadline is invoked from session's own Run
		// loop tick, so this closure is never called concurrently with
		// the rest of Run.
		sess.NotifyUnreachable(h)
	})
	sess.SetTracker(tracker)
	sess.SetResolver(resolver.NewDefault())

	ipcServer := ipc.NewServer(sess.Commands())
	hub := ipcServer.Hub()
	sess.OnPeerChange = func(h client.Handle) {
		if snap, ok := registry.Resolve(h); ok {
			hub.PublishPeerState(snap)
		}
	}
	sess.OnSessionChange = hub.PublishSessionState
	sess.OnError = hub.PublishError

	for _, p := range cfg.Peers {
		spec, err := peerSpec(p)
		if err != nil {
			log.Printf("config: skipping peer: %v", err)
			continue
		}
		sess.Commands() <- session.Command{Kind: session.CmdAddPeer, Spec: spec}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("lan-mouse: shutting down")
		cancel()
	}()

	go tp.Run(ctx)
	go forwardInbound(ctx, tp, sess)

	go func() {
		if err := ipcServer.Run(ctx, *ipcAddr); err != nil {
			log.Printf("ipc: %v", err)
		}
	}()

	log.Printf("lan-mouse: listening on udp/tcp port %d", bindPort)
	sess.Run(ctx)
}

func forwardInbound(ctx context.Context, tp *transport.Transport, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-tp.Inbound():
			sess.Deliver(raw)
		}
	}
}

func peerSpec(p config.Peer) (client.Spec, error) {
	pos, err := event.ParsePosition(p.Position)
	if err != nil {
		return client.Spec{}, err
	}
	candidates, err := parseIPs(p.IPs)
	if err != nil {
		return client.Spec{}, err
	}
	peerPort := p.Port
	if peerPort == 0 {
		peerPort = config.DefaultPort
	}
	return client.Spec{
		Hostname:          p.Hostname,
		Candidates:        candidates,
		Port:              peerPort,
		Position:          pos,
		ActivateOnStartup: p.ActivateOnStartup,
		OnEnterCommand:    p.OnEnterCommand,
	}, nil
}

func parseIPs(raw []string) ([]net.IP, error) {
	out := make([]net.IP, 0, len(raw))
	for _, s := range raw {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid ip %q", s)
		}
		out = append(out, ip)
	}
	return out, nil
}
