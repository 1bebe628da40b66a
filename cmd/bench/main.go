package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/ryandielhenn/peerprobe/pkg/gossip"
	"github.com/ryandielhenn/peerprobe/pkg/node"
)

func main() {
	addr := flag.String("addr", "localhost:8888", "prober address (host or host:port)")
	n := flag.Int("n", 1000, "pings to send; 1 is a one-shot ping")
	conc := flag.Int("c", 32, "concurrency")
	name := flag.String("name", "bench", "name to put in the pings")
	timeout := flag.Duration("timeout", 2*time.Second, "wait for each pong")
	flag.Parse()

	target, err := net.ResolveUDPAddr("udp", node.NormalizeHostPort(*addr, gossip.DefaultPort))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error resolving destination address:", err)
		os.Exit(1)
	}

	res := bench(target, gossip.NodeID(*name), *n, *conc, *timeout)
	if *n == 1 {
		if res.ok == 0 {
			fmt.Fprintln(os.Stderr, "no pong from", target)
			os.Exit(1)
		}
		fmt.Printf("%s from %s in %s\n", res.last, target, res.rtt)
		return
	}
	fmt.Printf("Completed %d pings in %s (%.2f ops/s), %d pongs, %d lost, mean rtt %s\n",
		*n, res.dur, float64(*n)/res.dur.Seconds(), res.ok, *n-int(res.ok), res.meanRTT())
}

type result struct {
	ok   int64
	rtt  time.Duration // sum over successful pings
	last string
	dur  time.Duration
}

func (r result) meanRTT() time.Duration {
	if r.ok == 0 {
		return 0
	}
	return r.rtt / time.Duration(r.ok)
}

// bench sends n pings, at most conc in flight, each from its own socket so
// the pong can be matched to the ping.
func bench(target *net.UDPAddr, name gossip.NodeID, n, conc int, timeout time.Duration) result {
	var (
		ok    = atomic.NewInt64(0)
		rtt   = atomic.NewDuration(0)
		last  atomic.String
		wg    sync.WaitGroup
		ch    = make(chan struct{}, conc)
		start = time.Now()
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		ch <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-ch }()
			reply, d, err := ping(target, name, timeout)
			if err != nil {
				return
			}
			ok.Inc()
			rtt.Add(d)
			last.Store(reply)
		}()
	}
	wg.Wait()
	return result{ok: ok.Load(), rtt: rtt.Load(), last: last.Load(), dur: time.Since(start)}
}

func ping(target *net.UDPAddr, name gossip.NodeID, timeout time.Duration) (string, time.Duration, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return "", 0, err
	}
	defer conn.Close()

	start := time.Now()
	if _, err := conn.WriteToUDP(gossip.Ping(name), target); err != nil {
		return "", 0, err
	}
	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return "", 0, err
	}
	buf := make([]byte, gossip.MaxDatagram)
	for {
		m, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return "", 0, err
		}
		if msg := gossip.Decode(buf[:m]); msg.Type == gossip.MsgPong {
			return string(msg.Raw), time.Since(start), nil
		}
	}
}
