package gossip

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ryandielhenn/peerprobe/internal/telemetry"
)

const (
	DefaultPort           = "8888"
	DefaultReceiveTimeout = time.Second
	DefaultRoundInterval  = 100 * time.Millisecond
)

var (
	ErrSelfNotInPeers = errors.New("gossip: local identity not in peer set")
	ErrInvalidName    = errors.New("gossip: identity must be non-empty and contain no ':'")
)

type Config struct {
	Self NodeID

	// ReceiveTimeout bounds the wait for one datagram per round.
	ReceiveTimeout time.Duration
	// RoundInterval is the pause between rounds. Zero means none.
	RoundInterval time.Duration
	// ExitOnReady makes Run return once every peer is confirmed. The
	// default is to keep answering pings until ctx is cancelled.
	ExitOnReady bool

	// AddrFor maps a peer name to the host:port to ping. Defaults to
	// name:8888.
	AddrFor func(NodeID) string
	// OnReady is called once, from the loop goroutine, on readiness.
	OnReady func()
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.RoundInterval < 0 {
		c.RoundInterval = 0
	}
	if c.AddrFor == nil {
		c.AddrFor = func(id NodeID) string { return net.JoinHostPort(string(id), DefaultPort) }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Snapshot is a read-only view of the prober published after every round.
type Snapshot struct {
	Self    NodeID
	Ready   bool
	Rounds  uint64
	Members []Member
}

// Prober runs the ping/pong liveness loop. All mutable state is owned by the
// goroutine calling Run (or the round methods); Snapshot, Ready and
// ReadyC may be called from anywhere.
type Prober struct {
	cfg    Config
	peers  *PeerSet
	table  *LivenessTable
	tr     Transport
	ready  *Latch
	rounds uint64

	snap atomic.Value // Snapshot
	log  *zap.Logger
}

func New(cfg Config, peers *PeerSet, tr Transport, log *zap.Logger) (*Prober, error) {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if !ValidName(cfg.Self) {
		return nil, errors.Wrapf(ErrInvalidName, "%q", cfg.Self)
	}
	self, ok := peers.IndexOf(cfg.Self)
	if !ok {
		return nil, errors.Wrapf(ErrSelfNotInPeers, "%q", cfg.Self)
	}

	p := &Prober{
		cfg:   cfg,
		peers: peers,
		table: NewLivenessTable(peers),
		tr:    tr,
		ready: NewLatch(),
		log:   log.Named("prober").With(zap.String("self", string(cfg.Self))),
	}
	// A node never needs to confirm itself.
	p.table.Confirm(self, cfg.Now())

	telemetry.Peers.Set(float64(peers.Len()))
	telemetry.ConfirmedPeers.Set(float64(p.table.ConfirmedCount()))
	telemetry.Ready.Set(0)
	p.publish()
	return p, nil
}

// ProbeRound pings every unconfirmed peer other than self and returns the
// number of pings sent. Failures are logged and retried next round.
func (p *Prober) ProbeRound(ctx context.Context) int {
	msg := Ping(p.cfg.Self)
	sent := 0
	for i, name := range p.peers.names {
		if ctx.Err() != nil {
			break
		}
		if p.table.Confirmed(i) || name == p.cfg.Self {
			continue
		}
		hp := p.cfg.AddrFor(name)
		addr, err := p.tr.Resolve(hp)
		if err != nil {
			telemetry.ProbeErrors.WithLabelValues("resolve").Inc()
			p.log.Warn("resolve failed", zap.String("peer", string(name)), zap.Error(err))
			continue
		}
		if err := p.tr.SendTo(addr, msg); err != nil {
			telemetry.ProbeErrors.WithLabelValues("send").Inc()
			p.log.Warn("ping failed", zap.String("peer", string(name)), zap.Error(err))
			continue
		}
		telemetry.PingsSent.Inc()
		sent++
	}
	return sent
}

// ReceiveRound waits up to ReceiveTimeout for one datagram and handles it.
// A timeout is not an error; a cancelled ctx or closed transport is.
func (p *Prober) ReceiveRound(ctx context.Context) error {
	pkt, err := p.tr.Receive(ctx, p.cfg.ReceiveTimeout)
	if err != nil {
		if errors.Cause(err) == ErrTimeout {
			return nil
		}
		return err
	}
	p.handle(pkt)
	return nil
}

func (p *Prober) handle(pkt Packet) {
	m := Decode(pkt.Payload)
	telemetry.MessagesReceived.WithLabelValues(m.Type.String()).Inc()

	switch m.Type {
	case MsgPing:
		// Answer everyone; the sender's name is not checked.
		if err := p.tr.SendTo(pkt.From, Pong(p.cfg.Self)); err != nil {
			telemetry.ProbeErrors.WithLabelValues("reply").Inc()
			p.log.Warn("pong failed", zap.Stringer("to", pkt.From), zap.Error(err))
			return
		}
		telemetry.PongsSent.Inc()
		p.log.Debug("answered ping", zap.String("from", string(m.From)), zap.Stringer("addr", pkt.From))
	case MsgPong:
		i, ok := p.peers.IndexOf(m.From)
		if !ok {
			p.log.Debug("pong from unknown peer", zap.String("from", string(m.From)))
			return
		}
		if p.table.Confirm(i, p.cfg.Now()) {
			telemetry.ConfirmedPeers.Set(float64(p.table.ConfirmedCount()))
			p.log.Info("peer confirmed",
				zap.String("peer", string(m.From)),
				zap.Int("confirmed", p.table.ConfirmedCount()),
				zap.Int("total", p.peers.Len()))
		}
	default:
		p.log.Info("unknown message", zap.ByteString("payload", m.Raw), zap.Stringer("addr", pkt.From))
	}
}

// checkReady fires the readiness signal the first time every flag is set.
func (p *Prober) checkReady() {
	if !p.table.AllConfirmed() || !p.ready.Fire() {
		return
	}
	telemetry.Ready.Set(1)
	p.log.Info("all peers confirmed", zap.Int("peers", p.peers.Len()))
	if p.cfg.OnReady != nil {
		p.cfg.OnReady()
	}
}

// Step runs one full iteration: probe, receive, readiness check.
func (p *Prober) Step(ctx context.Context) error {
	p.ProbeRound(ctx)
	err := p.ReceiveRound(ctx)
	p.checkReady()
	p.rounds++
	p.publish()
	return err
}

// Run loops until ctx is cancelled, or until readiness when ExitOnReady is
// set. Cancellation is not reported as an error.
func (p *Prober) Run(ctx context.Context) error {
	p.log.Info("probing",
		zap.Int("peers", p.peers.Len()),
		zap.Duration("timeout", p.cfg.ReceiveTimeout),
		zap.Duration("interval", p.cfg.RoundInterval),
		zap.Bool("exit_on_ready", p.cfg.ExitOnReady))

	var timer *time.Timer
	for {
		if err := p.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "receive")
		}
		if p.cfg.ExitOnReady && p.ready.Fired() {
			return nil
		}
		if p.cfg.RoundInterval == 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if timer == nil {
			timer = time.NewTimer(p.cfg.RoundInterval)
			defer timer.Stop()
		} else {
			timer.Reset(p.cfg.RoundInterval)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (p *Prober) publish() {
	p.snap.Store(Snapshot{
		Self:    p.cfg.Self,
		Ready:   p.ready.Fired(),
		Rounds:  p.rounds,
		Members: p.table.Members(),
	})
}

func (p *Prober) Snapshot() Snapshot { return p.snap.Load().(Snapshot) }

func (p *Prober) Ready() bool { return p.ready.Fired() }

// ReadyC is closed when readiness fires.
func (p *Prober) ReadyC() <-chan struct{} { return p.ready.Done() }

func (p *Prober) Self() NodeID { return p.cfg.Self }

// Flags returns the confirmed flags in peer order. Loop goroutine only.
func (p *Prober) Flags() []bool { return p.table.Flags() }
