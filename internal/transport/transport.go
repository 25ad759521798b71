// Package transport implements C8: one UDP socket for the datagram
// event path and a TCP listener on the same port for the reliable
// keymap side-channel. Grounded on the teacher's internal/network
// udp_sender.go/udp_receiver.go (bind, buffer tuning, readLoop
// goroutine dispatch, done-channel shutdown).
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/feschber/lan-mouse/internal/event"
)

// DefaultPort is the default UDP/TCP port (spec §6).
const DefaultPort = 4242

// KeymapOp is the single defined TCP side-channel operation (spec
// §6).
const KeymapOp byte = 0x01

const (
	tcpConnectTimeout = 5 * time.Second
	tcpReadTimeout    = 5 * time.Second
)

// Transport owns the UDP socket and TCP listener. Outbound UDP sends
// and inbound datagram dispatch happen through it; other tasks
// interact only via its channel/method surface (spec §5 — the socket
// is owned by transport-task).
type Transport struct {
	udp *net.UDPConn
	tcp *net.TCPListener

	inbound chan RawDatagram

	// KeymapProvider supplies the local xkb keymap blob served to
	// peers requesting it over TCP. May be nil (server replies with an
	// empty blob).
	KeymapProvider func() []byte
}

// RawDatagram is one received UDP payload, not yet attributed to a
// peer (that's the session's job, via the client registry).
type RawDatagram struct {
	From *net.UDPAddr
	Data event.Datagram
}

// Listen binds the UDP socket and TCP listener on port (spec §3: "The
// UDP port and TCP port are identical; both are bound before the
// capture adapter starts.").
func Listen(port int) (*Transport, error) {
	udpAddr := &net.UDPAddr{Port: port}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: udp listen: %w", err)
	}
	_ = udpConn.SetReadBuffer(1 << 20)
	_ = udpConn.SetWriteBuffer(1 << 20)

	tcpAddr := &net.TCPAddr{Port: udpConn.LocalAddr().(*net.UDPAddr).Port}
	tcpLn, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("transport: tcp listen: %w", err)
	}

	t := &Transport{
		udp:     udpConn,
		tcp:     tcpLn,
		inbound: make(chan RawDatagram, 1024),
	}
	return t, nil
}

// Port returns the bound UDP port (useful when 0 was requested, e.g.
// in tests).
func (t *Transport) Port() int {
	return t.udp.LocalAddr().(*net.UDPAddr).Port
}

// Inbound returns the channel of decoded inbound datagrams. Bounded at
// 1024 per spec §5; on overflow the oldest event is dropped in favor
// of latency (readLoop enforces this by draining one slot before
// enqueuing when full).
func (t *Transport) Inbound() <-chan RawDatagram {
	return t.inbound
}

// Run starts the UDP read loop and TCP accept loop. Blocks until ctx
// is cancelled.
func (t *Transport) Run(ctx context.Context) {
	go t.readLoopUDP(ctx)
	go t.acceptLoopTCP(ctx)
	<-ctx.Done()
	t.udp.Close()
	t.tcp.Close()
}

func (t *Transport) readLoopUDP(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := t.udp.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		d, err := event.Decode(buf[:n])
		if err != nil {
			// protocol error: logged and dropped, never fatal (spec §7).
			log.Printf("transport: decode error from %s: %v", addr, err)
			continue
		}
		raw := RawDatagram{From: addr, Data: d}
		select {
		case t.inbound <- raw:
		default:
			// queue full: drop the oldest to make room, preferring
			// latency over completeness (spec §5).
			select {
			case <-t.inbound:
			default:
			}
			select {
			case t.inbound <- raw:
			default:
			}
		}
	}
}

// SendUDP encodes and sends one datagram to addr. Non-blocking; UDP
// "success" means the syscall returned without error (spec §4.2).
func (t *Transport) SendUDP(addr *net.UDPAddr, d event.Datagram) error {
	buf, err := event.Encode(d, nil)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	_, err = t.udp.WriteToUDP(buf, addr)
	return err
}

func (t *Transport) acceptLoopTCP(ctx context.Context) {
	for {
		conn, err := t.tcp.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		go t.serveTCP(conn)
	}
}

func (t *Transport) serveTCP(conn *net.TCPConn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))

	var opBuf [1]byte
	if _, err := conn.Read(opBuf[:]); err != nil {
		return
	}
	if opBuf[0] != KeymapOp {
		return
	}

	var blob []byte
	if t.KeymapProvider != nil {
		blob = t.KeymapProvider()
	}
	frame := make([]byte, 4+len(blob))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(blob)))
	copy(frame[4:], blob)
	_, _ = conn.Write(frame)
}

// RequestKeymap opens a new TCP connection to addr, sends a GetKeymap
// request, and returns the framed response. One request per
// connection (spec §4.8/§6); cancellation-safe via ctx — if ctx is
// cancelled the dial/read aborts and it is safe for the caller to
// re-issue the request later (spec §4.8's "cancellation-safe I/O").
func RequestKeymap(ctx context.Context, addr string) ([]byte, error) {
	dialer := net.Dialer{Timeout: tcpConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: keymap dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(tcpReadTimeout))
	}

	if _, err := conn.Write([]byte{KeymapOp}); err != nil {
		return nil, fmt.Errorf("transport: keymap write: %w", err)
	}

	var lenBuf [4]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("transport: keymap length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	blob := make([]byte, length)
	if _, err := readFull(conn, blob); err != nil {
		return nil, fmt.Errorf("transport: keymap body: %w", err)
	}
	return blob, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
