// Package hostfile reads the plain-text peer list: one hostname per line,
// surrounding whitespace trimmed, blank lines skipped. There is no comment
// or escape syntax.
package hostfile

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/ryandielhenn/peerprobe/pkg/gossip"
)

// ErrNoPeers is returned for a file with no hostnames in it.
var ErrNoPeers = errors.New("hostfile: no peers")

// Parse builds a PeerSet in file order. Repeated names keep their first
// position and are returned in dups.
func Parse(r io.Reader) (peers *gossip.PeerSet, dups []string, err error) {
	peers = gossip.NewPeerSet()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if !peers.Add(gossip.NodeID(name)) {
			dups = append(dups, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "read hostfile")
	}
	if peers.Len() == 0 {
		return nil, nil, ErrNoPeers
	}
	return peers, dups, nil
}

func Load(path string) (*gossip.PeerSet, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open hostfile")
	}
	defer f.Close()
	peers, dups, err := Parse(f)
	if err != nil {
		return nil, nil, errors.Wrap(err, path)
	}
	return peers, dups, nil
}
