package node

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ryandielhenn/peerprobe/internal/telemetry"
	"github.com/ryandielhenn/peerprobe/pkg/gossip"
)

// StatusSource is what the HTTP endpoint reports on. *gossip.Prober
// satisfies it.
type StatusSource interface {
	Snapshot() gossip.Snapshot
}

type Node struct {
	src  StatusSource
	addr string
	log  *zap.Logger
}

func NewNode(src StatusSource, addr string, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{src: src, addr: addr, log: log.Named("http")}
}

func (n *Node) Addr() string {
	return n.addr
}

// Handler wires the status endpoints, each instrumented under its own op.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	mux.Handle("/readyz", telemetry.Instrument("readyz", http.HandlerFunc(n.Readyz)))
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}
