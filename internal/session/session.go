package session

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/exec"
	"time"

	"github.com/feschber/lan-mouse/internal/capture"
	"github.com/feschber/lan-mouse/internal/client"
	"github.com/feschber/lan-mouse/internal/emulate"
	"github.com/feschber/lan-mouse/internal/event"
	"github.com/feschber/lan-mouse/internal/liveness"
	"github.com/feschber/lan-mouse/internal/position"
	"github.com/feschber/lan-mouse/internal/resolver"
	"github.com/feschber/lan-mouse/internal/transport"
)

// tickInterval drives both the liveness deadline check and the ping
// scheduler. Short enough that PingActive (500ms) is honored with
// reasonable jitter.
const tickInterval = 100 * time.Millisecond

const keymapTimeout = 5 * time.Second
const resolveTimeout = 5 * time.Second

// Sender is the outbound half of the transport contract the session
// depends on (spec §5: session-task never touches the socket
// directly).
type Sender interface {
	SendUDP(addr *net.UDPAddr, d event.Datagram) error
}

// KeymapRequester performs one cancellation-safe reliable keymap fetch
// (spec §4.8). Satisfied by transport.RequestKeymap.
type KeymapRequester func(ctx context.Context, addr string) ([]byte, error)

// Session is C7: the single-owner state machine that is the heart of
// the system (spec §4.7). Every exported method that mutates state is
// expected to run only from Run's own goroutine; external actors talk
// to it exclusively through the Commands/Deliver channels, mirroring
// the teacher's switcher.go callback-driven design generalized to a
// full state machine grounded in original_source's capture_task.rs
// handle_capture_event and ping_task.rs's unresponsive-client path.
type Session struct {
	registry *client.Registry
	posMap   *position.Map
	tracker  *liveness.Tracker

	captureBackend capture.Backend
	emulateBackend emulate.Backend

	sender        Sender
	requestKeymap KeymapRequester

	releaseBind map[uint32]struct{}
	heldKeys    map[uint32]struct{}

	state      State
	activePeer client.Handle

	pendingEnter *event.Capture

	keymaps       map[client.Handle][]byte
	keymapCancel  context.CancelFunc
	keymapResults chan keymapResult

	// resolver re-resolves a hostname-configured peer's candidate
	// addresses when liveness marks it unreachable (spec.md §6's
	// hostname peers may move between DHCP leases). Nil disables
	// re-resolution entirely (literal-IP-only peers never need it).
	resolver       resolver.Resolver
	resolveResults chan resolveResult
	resolving      map[client.Handle]context.CancelFunc

	// candidateIdx tracks, per peer, which entry of Spec.Candidates
	// CurrentAddr was last set from (spec §4.2/C2). A transport error
	// advances it to the next candidate in insertion order; the
	// resulting address is cached as CurrentAddr until the next error.
	candidateIdx map[client.Handle]int

	lastPingAt   map[client.Handle]time.Time
	nonceCounter uint32

	enterCommandResults chan enterCommandResult

	commands chan Command
	inbound  chan transport.RawDatagram

	// OnPeerChange, OnSessionChange, OnError mirror the teacher's
	// switcher.go onSwitch/onError callback fields, feeding the IPC
	// event stream (spec §7). Any of them may be nil.
	OnPeerChange    func(client.Handle)
	OnSessionChange func(StateChange)
	OnError         func(ErrorNotice)
}

type keymapResult struct {
	handle client.Handle
	data   []byte
	err    error
}

type resolveResult struct {
	handle client.Handle
	ips    []net.IP
	err    error
}

type enterCommandResult struct {
	handle client.Handle
	err    error
}

// New builds a Session. releaseBind is the configured chord of
// scancodes (spec §4.7's release-bind); an empty set disables the
// release-bind shortcut entirely (peer-unreachable is still handled by
// liveness).
func New(
	registry *client.Registry,
	posMap *position.Map,
	tracker *liveness.Tracker,
	captureBackend capture.Backend,
	emulateBackend emulate.Backend,
	sender Sender,
	requestKeymap KeymapRequester,
	releaseBind []uint32,
) *Session {
	bind := make(map[uint32]struct{}, len(releaseBind))
	for _, c := range releaseBind {
		bind[c] = struct{}{}
	}
	s := &Session{
		registry:       registry,
		posMap:         posMap,
		tracker:        tracker,
		captureBackend: captureBackend,
		emulateBackend: emulateBackend,
		sender:         sender,
		requestKeymap:  requestKeymap,
		releaseBind:    bind,
		heldKeys:       make(map[uint32]struct{}),
		keymaps:        make(map[client.Handle][]byte),
		keymapResults:  make(chan keymapResult, 4),
		resolveResults: make(chan resolveResult, 4),
		resolving:      make(map[client.Handle]context.CancelFunc),
		candidateIdx:   make(map[client.Handle]int),
		lastPingAt:     make(map[client.Handle]time.Time),
		enterCommandResults: make(chan enterCommandResult, 4),
		commands:       make(chan Command, 16),
		inbound:        make(chan transport.RawDatagram, 256),
	}
	return s
}

// Commands returns the channel IPC command handlers submit requests on.
func (s *Session) Commands() chan<- Command { return s.commands }

// SetTracker wires the liveness tracker after construction, for the
// common case where the tracker's own onUnreachable callback needs a
// reference to the session (a dependency cycle New can't resolve on
// its own).
func (s *Session) SetTracker(t *liveness.Tracker) { s.tracker = t }

// SetResolver wires a hostname resolver for re-resolution on
// liveness failure. Leaving it unset disables re-resolution.
func (s *Session) SetResolver(r resolver.Resolver) { s.resolver = r }

// NotifyUnreachable is the liveness tracker's onUnreachable callback.
// Safe only because CheckDeadline (which invokes it) is always called
// from Run's own select loop — never from another goroutine.
func (s *Session) NotifyUnreachable(h client.Handle) { s.handleUnreachable(h) }

// Deliver hands one raw inbound datagram from the transport layer to
// the session for processing.
func (s *Session) Deliver(raw transport.RawDatagram) { s.inbound <- raw }

// Run is the session-task main loop (spec §5): the only goroutine that
// ever mutates registry/posMap/tracker state beyond their own internal
// locking. Blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case e, ok := <-s.captureBackend.Events():
			if !ok {
				s.shutdown()
				return
			}
			s.handleCapture(e)
		case raw := <-s.inbound:
			s.handleInbound(raw)
		case cmd := <-s.commands:
			s.handleCommand(cmd)
		case kr := <-s.keymapResults:
			s.handleKeymapResult(kr)
		case rr := <-s.resolveResults:
			s.handleResolveResult(rr)
		case cr := <-s.enterCommandResults:
			if cr.err != nil {
				s.emitError("enter-command", fmt.Errorf("on_enter_command for peer %d: %w", cr.handle, cr.err))
			}
		case now := <-ticker.C:
			s.tracker.CheckDeadline(now)
			s.sendDuePings(now)
		}
	}
}

func (s *Session) shutdown() {
	s.cancelKeymap()
	_ = s.captureBackend.Terminate()
	s.emulateBackend.Terminate()
}

// handleCapture processes one locally captured input event (spec
// §4.2, §4.7).
func (s *Session) handleCapture(e event.Capture) {
	if e.Kind == event.CaptureKey {
		s.trackHeld(e)
	}

	switch e.Kind {
	case event.CaptureEnterEdge:
		s.onEnterEdge(e)
		return
	case event.CaptureDisconnect:
		if s.state != Idle {
			s.beginReleasing()
		}
		return
	case event.CaptureRelease:
		if s.state == Active {
			s.beginReleasing()
		}
		return
	}

	if s.state == Active && e.Kind == event.CaptureKey && s.releaseBindMatched() {
		s.beginReleasing()
		return
	}

	s.forwardLocalEvent(e)
}

func (s *Session) trackHeld(e event.Capture) {
	if len(s.releaseBind) == 0 {
		return
	}
	if e.Pressed {
		s.heldKeys[e.Code] = struct{}{}
	} else {
		delete(s.heldKeys, e.Code)
	}
}

// releaseBindMatched implements the edge-triggered exact-set chord
// match of spec §4.7/P6: every configured scancode is currently held,
// and no extra key is held beyond the chord.
func (s *Session) releaseBindMatched() bool {
	if len(s.releaseBind) == 0 || len(s.heldKeys) != len(s.releaseBind) {
		return false
	}
	for code := range s.releaseBind {
		if _, ok := s.heldKeys[code]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) forwardLocalEvent(e event.Capture) {
	if s.state != Active {
		return
	}
	peer, ok := s.registry.Resolve(s.activePeer)
	if !ok || peer.State.CurrentAddr == nil {
		return
	}
	d, ok := captureToDatagram(e)
	if !ok {
		return
	}
	if err := s.sendToPeer(s.activePeer, peer.State.CurrentAddr, d); err != nil {
		s.emitError("transport", fmt.Errorf("forward to peer %d: %w", s.activePeer, err))
		return
	}
	if e.Kind == event.CaptureKey {
		h := s.activePeer
		_ = s.registry.Update(h, func(st *client.State) {
			if e.Pressed {
				st.PressedKeys[e.Code] = struct{}{}
			} else {
				delete(st.PressedKeys, e.Code)
			}
		})
	}
}

func captureToDatagram(e event.Capture) (event.Datagram, bool) {
	ts := nowMs()
	switch e.Kind {
	case event.CaptureMotion:
		return event.Datagram{Tag: event.TagMotion, TimestampMs: ts, DX: e.DX, DY: e.DY}, true
	case event.CaptureButton:
		return event.Datagram{Tag: event.TagButton, TimestampMs: ts, Button: e.Code, Pressed: e.Pressed}, true
	case event.CaptureKey:
		return event.Datagram{Tag: event.TagKey, TimestampMs: ts, Scancode: e.Code, Pressed: e.Pressed}, true
	case event.CaptureAxis:
		return event.Datagram{Tag: event.TagAxis, TimestampMs: ts, AxisID: e.AxisID, Value: e.Value}, true
	default:
		return event.Datagram{}, false
	}
}

func nowMs() uint32 {
	return uint32(time.Now().UnixMilli())
}

// onEnterEdge handles a local cursor-crossed-edge capture event (spec
// §4.3, §4.7). While Releasing, the enter is queued (depth 1, newest
// wins) and replayed once Idle is reached. While Active, an edge
// crossing into a *different* peer's edge is a direct hand-off (C7's
// fourth named transition, ActiveTo(p) -> ActiveTo(q)): the current
// peer is released first so it never observes its keys stuck down,
// then the new peer is activated.
func (s *Session) onEnterEdge(e event.Capture) {
	if s.state == Releasing {
		ev := e
		s.pendingEnter = &ev
		return
	}
	h, ok := s.posMap.Select(e.Edge, s.registry)
	if !ok {
		return
	}
	if s.state == Active {
		if h == s.activePeer {
			return
		}
		ev := e
		s.pendingEnter = &ev
		s.beginReleasing()
		return
	}
	s.activatePeer(h, e.Position, e.Edge)
}

func (s *Session) activatePeer(h client.Handle, pos uint16, edge event.Position) {
	peer, ok := s.registry.Resolve(h)
	if !ok || peer.State.CurrentAddr == nil {
		return
	}
	s.state = Active
	s.activePeer = h
	_ = s.registry.Update(h, func(st *client.State) { st.Active = true })

	if err := s.sendToPeer(h, peer.State.CurrentAddr, event.Datagram{Tag: event.TagEnter, Edge: edge, Position: pos}); err != nil {
		s.emitError("transport", fmt.Errorf("enter notice to peer %d: %w", h, err))
	}
	if peer.Spec.OnEnterCommand != "" {
		s.runEnterCommand(peer.Spec.OnEnterCommand, h)
	}
	s.emitSessionChange(StateChange{State: Active, Peer: h})
	s.emitPeerChange(h)
	s.ensureKeymap(h)
}

// beginReleasing drains the active peer's pressed keys (spec §4.7's
// key-release safety guarantee, P1) and returns to Idle. The drain is
// synchronous and best-effort: UDP sends are fire-and-forget, matching
// the try-once semantics chosen for an unresponsive peer.
func (s *Session) beginReleasing() {
	if s.state != Active {
		return
	}
	prev := s.activePeer
	s.state = Releasing
	s.emitSessionChange(StateChange{State: Releasing, Peer: prev})

	peer, ok := s.registry.Resolve(prev)
	if ok && peer.State.CurrentAddr != nil {
		for code := range peer.State.PressedKeys {
			d := event.Datagram{Tag: event.TagKey, TimestampMs: nowMs(), Scancode: code, Pressed: false}
			_ = s.sendToPeer(prev, peer.State.CurrentAddr, d)
		}
		// spec §8 scenario 1: the local chord releases the session back
		// to local control, which is a disconnect notice, not a leave
		// (TagLeave only covers the peer-initiated edge-leave path).
		_ = s.sendToPeer(prev, peer.State.CurrentAddr, event.Datagram{Tag: event.TagDisconnect})
	}
	_ = s.registry.Update(prev, func(st *client.State) {
		st.PressedKeys = make(map[uint32]struct{})
		st.Active = false
	})
	s.heldKeys = make(map[uint32]struct{})
	s.cancelKeymap()
	if err := s.captureBackend.Release(); err != nil {
		s.emitError("backend", fmt.Errorf("capture release: %w", err))
	}

	s.state = Idle
	s.activePeer = 0
	s.emitSessionChange(StateChange{State: Idle})
	s.emitPeerChange(prev)

	if s.pendingEnter != nil {
		pe := *s.pendingEnter
		s.pendingEnter = nil
		s.onEnterEdge(pe)
	}
}

// handleInbound processes one decoded datagram from the network (spec
// §4.2, §4.7, §7).
func (s *Session) handleInbound(raw transport.RawDatagram) {
	h, known := s.resolvePeerByAddr(raw.From)
	in := Inbound{From: raw.From, FromPeer: h, Known: known, Datagram: raw.Data}

	switch in.Datagram.Tag {
	case event.TagPing:
		_ = s.sender.SendUDP(in.From, event.Datagram{Tag: event.TagPong, Nonce: in.Datagram.Nonce})
		return
	case event.TagPong:
		if in.Known {
			s.tracker.OnPong(in.FromPeer, time.Now())
			rtt := s.tracker.RTT(in.FromPeer)
			_ = s.registry.Update(in.FromPeer, func(st *client.State) { st.Alive = true; st.RTT = rtt })
		}
		return
	case event.TagEnter, event.TagLeave:
		if in.Known {
			s.emitPeerChange(in.FromPeer)
		}
		return
	case event.TagDisconnect:
		if !in.Known {
			return
		}
		_ = s.registry.Update(in.FromPeer, func(st *client.State) { st.Alive = false; st.CurrentAddr = nil })
		s.tracker.Untrack(in.FromPeer)
		if s.state == Active && s.activePeer == in.FromPeer {
			s.beginReleasing()
		}
		s.emulateBackend.Destroy(in.FromPeer)
		s.emitPeerChange(in.FromPeer)
		return
	}

	if !in.Known {
		log.Printf("session: dropping datagram (tag %#x) from unknown source %s", in.Datagram.Tag, in.From)
		return
	}
	// feedback-loop guard (spec §4.7/P2): never emulate an event whose
	// source is the peer we are currently forwarding to.
	if s.state == Active && in.FromPeer == s.activePeer {
		return
	}
	if err := s.emulateBackend.Create(in.FromPeer); err != nil {
		s.emitError("backend", err)
		return
	}
	s.emulateBackend.Consume(in.FromPeer, in.Datagram)
	if in.Datagram.Tag == event.TagKey {
		_ = s.registry.Update(in.FromPeer, func(st *client.State) {
			if in.Datagram.Pressed {
				st.PressedKeys[in.Datagram.Scancode] = struct{}{}
			} else {
				delete(st.PressedKeys, in.Datagram.Scancode)
			}
		})
	}
}

func (s *Session) resolvePeerByAddr(addr *net.UDPAddr) (client.Handle, bool) {
	for _, p := range s.registry.List() {
		if p.State.CurrentAddr != nil && udpAddrEqual(p.State.CurrentAddr, addr) {
			return p.Handle, true
		}
	}
	return 0, false
}

func udpAddrEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// sendToPeer sends d to h's cached CurrentAddr and, on a transport
// error, advances h to its next configured candidate address (spec
// §4.2/C2) so the *following* send tries a different address. The
// failed send itself is not retried, matching the try-once,
// fire-and-forget semantics already used for key-release (§9(b)).
func (s *Session) sendToPeer(h client.Handle, addr *net.UDPAddr, d event.Datagram) error {
	err := s.sender.SendUDP(addr, d)
	if err != nil {
		s.advanceCandidate(h)
	}
	return err
}

// advanceCandidate moves h's CurrentAddr to the next entry of its
// configured Spec.Candidates, in insertion order, wrapping back to the
// first candidate after the last. A peer with fewer than two
// candidates (including hostname-only peers, which have none) is left
// untouched here — those rely on reresolve instead.
func (s *Session) advanceCandidate(h client.Handle) {
	peer, ok := s.registry.Resolve(h)
	if !ok || len(peer.Spec.Candidates) < 2 {
		return
	}
	next := (s.candidateIdx[h] + 1) % len(peer.Spec.Candidates)
	s.candidateIdx[h] = next
	port := peer.Spec.Port
	if peer.State.CurrentAddr != nil {
		port = peer.State.CurrentAddr.Port
	}
	addr := &net.UDPAddr{IP: peer.Spec.Candidates[next], Port: port}
	_ = s.registry.Update(h, func(st *client.State) { st.CurrentAddr = addr })
}

// handleCommand services one IPC-driven request (spec §6's CLI
// surface).
func (s *Session) handleCommand(cmd Command) {
	var reply CommandReply
	switch cmd.Kind {
	case CmdAddPeer:
		h := s.registry.Add(cmd.Spec)
		s.posMap.Assign(cmd.Spec.Position, h)
		s.tracker.Track(h)
		if len(cmd.Spec.Candidates) > 0 {
			s.candidateIdx[h] = 0
			addr := &net.UDPAddr{IP: cmd.Spec.Candidates[0], Port: cmd.Spec.Port}
			_ = s.registry.Update(h, func(st *client.State) { st.CurrentAddr = addr; st.Alive = true })
		} else if cmd.Spec.Hostname != "" {
			// hostname-only peer (spec §6): no literal candidate to seed
			// CurrentAddr with, so kick off the same async resolve path
			// reresolve uses once a peer goes unreachable — otherwise
			// sendDuePings would never have an address to ping and this
			// peer could never become Alive in the first place.
			s.reresolve(h)
		}
		reply.Handle = h
		s.emitPeerChange(h)
		if cmd.Spec.ActivateOnStartup && s.state == Idle {
			s.activatePeer(h, 0, cmd.Spec.Position)
		}
	case CmdRemovePeer:
		s.removePeer(cmd.Handle)
	case CmdList:
		reply.Peers = s.registry.List()
	case CmdActivate:
		if p, ok := s.registry.Resolve(cmd.Handle); ok {
			if s.state != Idle && s.activePeer != cmd.Handle {
				s.beginReleasing()
			}
			if s.state == Idle {
				s.activatePeer(cmd.Handle, 0, p.Spec.Position)
			}
		} else {
			reply.Err = fmt.Errorf("session: unknown peer %d", cmd.Handle)
		}
	case CmdDeactivate:
		if s.state != Idle && s.activePeer == cmd.Handle {
			s.beginReleasing()
		}
	case CmdReassign:
		s.posMap.Reassign(cmd.Handle, cmd.Position)
		s.emitPeerChange(cmd.Handle)
	}
	if cmd.Reply != nil {
		cmd.Reply <- reply
	}
}

func (s *Session) removePeer(h client.Handle) {
	if s.state != Idle && s.activePeer == h {
		s.beginReleasing()
	}
	s.tracker.Untrack(h)
	s.posMap.Remove(h)
	s.registry.Remove(h)
	delete(s.keymaps, h)
	delete(s.lastPingAt, h)
	delete(s.candidateIdx, h)
	if cancel, ok := s.resolving[h]; ok {
		cancel()
		delete(s.resolving, h)
	}
	s.emulateBackend.Destroy(h)
	s.emitPeerChange(h)
}

// handleUnreachable is the liveness tracker's callback; it runs
// synchronously on the session goroutine because CheckDeadline is only
// ever invoked from Run's own select loop.
func (s *Session) handleUnreachable(h client.Handle) {
	_ = s.registry.Update(h, func(st *client.State) { st.Alive = false })
	if s.state == Active && s.activePeer == h {
		s.beginReleasing()
	}
	s.emulateBackend.Destroy(h)
	s.emitError("peer-unreachable", fmt.Errorf("peer %d stopped responding to pings", h))
	s.emitPeerChange(h)
	s.reresolve(h)
}

// reresolve re-looks-up a hostname-configured peer's address once it
// has gone unreachable, in case the peer came back up on a new DHCP
// lease. No-op for peers with no hostname or when no resolver is
// wired. Cancellation-safe the same way ensureKeymap is: a later call
// (e.g. peer removed, another unreachable event) cancels the
// in-flight lookup via s.resolving.
func (s *Session) reresolve(h client.Handle) {
	if s.resolver == nil {
		return
	}
	peer, ok := s.registry.Resolve(h)
	if !ok || peer.Spec.Hostname == "" {
		return
	}
	if cancel, inFlight := s.resolving[h]; inFlight {
		cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	s.resolving[h] = cancel
	hostname := peer.Spec.Hostname
	go func() {
		ips, err := s.resolver.Resolve(ctx, hostname)
		s.resolveResults <- resolveResult{handle: h, ips: ips, err: err}
	}()
}

func (s *Session) handleResolveResult(rr resolveResult) {
	if cancel, ok := s.resolving[rr.handle]; ok {
		cancel()
		delete(s.resolving, rr.handle)
	}
	if rr.err != nil || len(rr.ips) == 0 {
		return
	}
	peer, ok := s.registry.Resolve(rr.handle)
	if !ok {
		return
	}
	port := peer.Spec.Port
	if peer.State.CurrentAddr != nil {
		port = peer.State.CurrentAddr.Port
	}
	addr := &net.UDPAddr{IP: rr.ips[0], Port: port}
	_ = s.registry.Update(rr.handle, func(st *client.State) { st.CurrentAddr = addr })
}

func (s *Session) sendDuePings(now time.Time) {
	for _, p := range s.registry.List() {
		if p.State.CurrentAddr == nil {
			continue
		}
		interval := liveness.PingIdle
		if s.state == Active && p.Handle == s.activePeer {
			interval = liveness.PingActive
		}
		if now.Sub(s.lastPingAt[p.Handle]) < interval {
			continue
		}
		s.nonceCounter++
		nonce := s.nonceCounter
		if err := s.sendToPeer(p.Handle, p.State.CurrentAddr, event.Datagram{Tag: event.TagPing, Nonce: nonce}); err != nil {
			continue
		}
		s.lastPingAt[p.Handle] = now
		s.tracker.NotePingSent(p.Handle, now)
	}
}

// ensureKeymap kicks off a cancellation-safe reliable keymap fetch for
// h if one isn't already cached or in flight (spec §4.8).
func (s *Session) ensureKeymap(h client.Handle) {
	if s.requestKeymap == nil {
		return
	}
	if _, cached := s.keymaps[h]; cached {
		return
	}
	peer, ok := s.registry.Resolve(h)
	if !ok || peer.State.OutstandingKeymapReq || peer.State.CurrentAddr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), keymapTimeout)
	s.cancelKeymap()
	s.keymapCancel = cancel
	_ = s.registry.Update(h, func(st *client.State) { st.OutstandingKeymapReq = true })

	addr := fmt.Sprintf("%s:%d", peer.State.CurrentAddr.IP, peer.State.CurrentAddr.Port)
	go func() {
		data, err := s.requestKeymap(ctx, addr)
		s.keymapResults <- keymapResult{handle: h, data: data, err: err}
	}()
}

func (s *Session) handleKeymapResult(kr keymapResult) {
	_ = s.registry.Update(kr.handle, func(st *client.State) { st.OutstandingKeymapReq = false })
	if kr.err != nil {
		s.emitError("transport", fmt.Errorf("keymap fetch from peer %d: %w", kr.handle, kr.err))
		return
	}
	s.keymaps[kr.handle] = kr.data
}

func (s *Session) cancelKeymap() {
	if s.keymapCancel != nil {
		s.keymapCancel()
		s.keymapCancel = nil
	}
}

func (s *Session) emitSessionChange(c StateChange) {
	if s.OnSessionChange != nil {
		s.OnSessionChange(c)
	}
}

func (s *Session) emitPeerChange(h client.Handle) {
	if s.OnPeerChange != nil {
		s.OnPeerChange(h)
	}
}

// runEnterCommand runs the peer's configured on-enter shell command
// (spec §13's command hook) in a detached goroutine, the same way the
// teacher's osutils_stub.go shells out via os/exec: fire-and-forget,
// logged as an error notice rather than blocking the session loop on
// an external process.
func (s *Session) runEnterCommand(command string, h client.Handle) {
	cmd := exec.Command("sh", "-c", command)
	go func() {
		err := cmd.Run()
		s.enterCommandResults <- enterCommandResult{handle: h, err: err}
	}()
}

// emitError logs the error on the daemon's own console, matching the
// teacher's switcher.go (which calls log.Printf directly alongside its
// callback field rather than relying on a connected frontend to
// surface it), then notifies OnError if a frontend is listening.
func (s *Session) emitError(kind string, err error) {
	log.Printf("session: %s: %v", kind, err)
	if s.OnError != nil {
		s.OnError(ErrorNotice{Kind: kind, Message: err.Error()})
	}
}
