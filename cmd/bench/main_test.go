package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/peerprobe/pkg/gossip"
)

// startProber runs a single-peer prober on loopback that answers pings.
func startProber(t *testing.T) *net.UDPAddr {
	t.Helper()
	tr, err := gossip.ListenUDP("127.0.0.1:0", nil)
	require.NoError(t, err)
	p, err := gossip.New(gossip.Config{Self: "target", ReceiveTimeout: 10 * time.Millisecond}, gossip.NewPeerSet("target"), tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = tr.Close()
	})
	return tr.LocalAddr().(*net.UDPAddr)
}

func TestPing(t *testing.T) {
	target := startProber(t)
	reply, rtt, err := ping(target, "bench", 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong:target", reply)
	require.Greater(t, int64(rtt), int64(0))
}

func TestBench(t *testing.T) {
	target := startProber(t)
	res := bench(target, "bench", 20, 4, 2*time.Second)
	require.Equal(t, int64(20), res.ok)
	require.Equal(t, "pong:target", res.last)
	require.Greater(t, int64(res.meanRTT()), int64(0))
}

func TestPing_NoListener(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	target := pc.LocalAddr().(*net.UDPAddr)
	require.NoError(t, pc.Close())

	_, _, err = ping(target, "bench", 100*time.Millisecond)
	require.Error(t, err)
}
