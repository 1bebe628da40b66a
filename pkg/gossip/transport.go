package gossip

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Transport moves datagrams for the prober. UDPTransport is the real one,
// ChannelTransport connects probers inside one process for tests.
//
// Receive delivers at most one packet per call and is event driven: it
// returns as soon as a packet arrives, the timeout fires or ctx is done.

var (
	ErrTimeout = errors.New("gossip: receive timeout")
	ErrClosed  = errors.New("gossip: transport closed")
)

type Packet struct {
	From    net.Addr
	Payload []byte
}

type Transport interface {
	Resolve(hostport string) (net.Addr, error)
	SendTo(addr net.Addr, payload []byte) error
	Receive(ctx context.Context, timeout time.Duration) (Packet, error)
	LocalAddr() net.Addr
	Close() error
}

// inbox is the receive side shared by both transports.
type inbox struct {
	packets chan Packet
	done    chan struct{}
	once    sync.Once
}

func newInbox(size int) *inbox {
	return &inbox{packets: make(chan Packet, size), done: make(chan struct{})}
}

func (in *inbox) receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	if timeout <= 0 {
		select {
		case p := <-in.packets:
			return p, nil
		case <-in.done:
			return Packet{}, ErrClosed
		default:
			return Packet{}, ErrTimeout
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-in.packets:
		return p, nil
	case <-timer.C:
		return Packet{}, ErrTimeout
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-in.done:
		return Packet{}, ErrClosed
	}
}

func (in *inbox) close() bool {
	closed := false
	in.once.Do(func() {
		close(in.done)
		closed = true
	})
	return closed
}

func (in *inbox) closed() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

// ---- UDP ----

type UDPTransport struct {
	conn *net.UDPConn
	in   *inbox
	wg   sync.WaitGroup
	log  *zap.Logger
}

// ListenUDP binds addr (for example ":8888") and starts the reader.
func ListenUDP(addr string, log *zap.Logger) (*UDPTransport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve listen address %q", addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "bind %s", addr)
	}
	t := &UDPTransport{
		conn: conn,
		in:   newInbox(64),
		log:  log.Named("transport"),
	}
	t.wg.Add(1)
	go t.readLoop()
	t.log.Info("listening", zap.Stringer("addr", conn.LocalAddr()))
	return t, nil
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.in.closed() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn("read failed", zap.Error(err))
			continue
		}
		p := Packet{From: from, Payload: append([]byte(nil), buf[:n]...)}
		select {
		case t.in.packets <- p:
		case <-t.in.done:
			return
		}
	}
}

func (t *UDPTransport) Resolve(hostport string) (net.Addr, error) {
	a, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", hostport)
	}
	return a, nil
}

func (t *UDPTransport) SendTo(addr net.Addr, payload []byte) error {
	if t.in.closed() {
		return ErrClosed
	}
	if _, err := t.conn.WriteTo(payload, addr); err != nil {
		return errors.Wrapf(err, "send to %s", addr)
	}
	return nil
}

func (t *UDPTransport) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	return t.in.receive(ctx, timeout)
}

func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *UDPTransport) Close() error {
	if !t.in.close() {
		return nil
	}
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// ---- in-process ----

type chanAddr string

func (a chanAddr) Network() string { return "chan" }
func (a chanAddr) String() string  { return string(a) }

// Hub connects ChannelTransports by address. Delivery drops packets when
// the receiver's queue is full, like a socket buffer would.
type Hub struct {
	mu    sync.Mutex
	nodes map[string]*ChannelTransport
}

func NewHub() *Hub {
	return &Hub{nodes: make(map[string]*ChannelTransport)}
}

// Endpoint registers a transport reachable at addr.
func (h *Hub) Endpoint(addr string) *ChannelTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &ChannelTransport{hub: h, addr: chanAddr(addr), in: newInbox(64)}
	h.nodes[addr] = t
	return t
}

func (h *Hub) lookup(addr string) (*ChannelTransport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.nodes[addr]
	return t, ok
}

func (h *Hub) remove(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, addr)
}

type ChannelTransport struct {
	hub  *Hub
	addr chanAddr
	in   *inbox
}

func (t *ChannelTransport) Resolve(hostport string) (net.Addr, error) {
	if _, ok := t.hub.lookup(hostport); !ok {
		return nil, errors.Errorf("resolve %s: no such endpoint", hostport)
	}
	return chanAddr(hostport), nil
}

func (t *ChannelTransport) SendTo(addr net.Addr, payload []byte) error {
	if t.in.closed() {
		return ErrClosed
	}
	dst, ok := t.hub.lookup(addr.String())
	if !ok {
		return errors.Errorf("send to %s: no such endpoint", addr)
	}
	p := Packet{From: t.addr, Payload: append([]byte(nil), payload...)}
	select {
	case dst.in.packets <- p:
	default:
	}
	return nil
}

func (t *ChannelTransport) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	return t.in.receive(ctx, timeout)
}

func (t *ChannelTransport) LocalAddr() net.Addr { return t.addr }

func (t *ChannelTransport) Close() error {
	if t.in.close() {
		t.hub.remove(string(t.addr))
	}
	return nil
}
