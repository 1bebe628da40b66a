// Package gossip implements the peer liveness prober: every node pings the
// peers it has not heard from yet, answers every ping it receives with a
// pong, and latches a readiness signal once all peers have answered.
//
// The wire format is plain text, "ping:<name>" and "pong:<name>", carried
// over an abstract Transport. UDPTransport is used in production and
// ChannelTransport connects probers inside one process for testing.
//
// Typical usage:
//
//	tr, _ := gossip.ListenUDP(":8888", log)
//	p, _ := gossip.New(gossip.Config{Self: "node1"}, gossip.NewPeerSet("node1", "node2"), tr, log)
//	_ = p.Run(ctx)
//
// Limitations: a confirmed peer is never re-checked, and the name in a pong
// is trusted as is, so a third party can confirm a peer on its behalf.
package gossip
