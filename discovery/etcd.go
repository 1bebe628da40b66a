// Package discovery publishes this node in etcd and lists the other peers
// registered under the same prefix.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type Peer struct {
	ID   string
	Addr string
}

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "etcd client")
	}
	return cli, nil
}

// RegisterNode writes prefix+id -> addr under a lease of ttl seconds and
// keeps the lease alive until the returned cancel is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, id, addr string, ttl int64, log *zap.Logger) (clientv3.LeaseID, context.CancelFunc, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, errors.Wrap(err, "grant lease")
	}
	key := prefix + id
	if _, err := cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, errors.Wrapf(err, "put %s", key)
	}

	kctx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, errors.Wrap(err, "keepalive")
	}
	go func() {
		for range ch {
		}
		if kctx.Err() == nil {
			log.Warn("lease keepalive stopped", zap.String("key", key))
		}
	}()
	return lease.ID, cancel, nil
}

// GetPeers lists every node registered under prefix, sorted by id.
func GetPeers(ctx context.Context, cli *clientv3.Client, prefix string) ([]Peer, error) {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	return PeersFromKVs(prefix, resp.Kvs), nil
}

// PeersFromKVs strips prefix from each key. Keys equal to the prefix are
// skipped.
func PeersFromKVs(prefix string, kvs []*mvccpb.KeyValue) []Peer {
	peers := make([]Peer, 0, len(kvs))
	for _, kv := range kvs {
		id := strings.TrimPrefix(string(kv.Key), prefix)
		if id == "" || id == string(kv.Key) {
			continue
		}
		peers = append(peers, Peer{ID: id, Addr: string(kv.Value)})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}
