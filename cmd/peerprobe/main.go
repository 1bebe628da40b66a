package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"github.com/ryandielhenn/peerprobe/discovery"
	"github.com/ryandielhenn/peerprobe/internal/config"
	"github.com/ryandielhenn/peerprobe/internal/logging"
	"github.com/ryandielhenn/peerprobe/internal/telemetry"
	"github.com/ryandielhenn/peerprobe/pkg/gossip"
	"github.com/ryandielhenn/peerprobe/pkg/hostfile"
	"github.com/ryandielhenn/peerprobe/pkg/node"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal error:", err)
		os.Exit(1)
	}
}

func init() {
	// -h is the hostsfile flag.
	cli.HelpFlag = cli.BoolFlag{Name: "help", Usage: "show help"}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "peerprobe"
	app.Usage = "ping every peer in a hostsfile until all of them answer, then print READY"
	app.Version = version
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "h, hosts", Usage: "path to the hostsfile, one hostname per line"},
		cli.StringFlag{Name: "config, c", Usage: "TOML config file; flags override it"},
		cli.StringFlag{Name: "name", Usage: "local identity (default: OS hostname)"},
		cli.IntFlag{Name: "port, p", Value: 8888, Usage: "UDP port to bind and to ping peers on"},
		cli.DurationFlag{Name: "timeout", Value: time.Second, Usage: "receive timeout per round"},
		cli.DurationFlag{Name: "interval", Value: 100 * time.Millisecond, Usage: "pause between rounds"},
		cli.DurationFlag{Name: "startup-delay", Usage: "wait before binding, to let peers start"},
		cli.BoolFlag{Name: "exit-on-ready, x", Usage: "exit 0 once every peer is confirmed"},
		cli.StringFlag{Name: "http", Usage: "address for /healthz, /readyz, /info and /metrics (disabled if empty)"},
		cli.StringFlag{Name: "etcd", Usage: "comma-separated etcd endpoints for peer discovery"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		cli.BoolFlag{Name: "dev", Usage: "human-readable development logging"},
	}
	app.Action = run
	return app
}

// loadConfig layers defaults, the config file and explicitly set flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("h") {
		cfg.Hostfile = c.String("h")
	}
	if c.IsSet("name") {
		cfg.Name = c.String("name")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("timeout") {
		cfg.ReceiveTimeout.Duration = c.Duration("timeout")
	}
	if c.IsSet("interval") {
		cfg.RoundInterval.Duration = c.Duration("interval")
	}
	if c.IsSet("startup-delay") {
		cfg.StartupDelay.Duration = c.Duration("startup-delay")
	}
	if c.IsSet("exit-on-ready") {
		cfg.ExitOnReady = c.Bool("exit-on-ready")
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = c.String("http")
	}
	if c.IsSet("etcd") {
		cfg.Etcd.Endpoints = config.ParseEndpoints(c.String("etcd"))
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("dev") {
		cfg.Log.Development = c.Bool("dev")
	}

	if err := cfg.ResolveName(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) (err error) {
	// 1. Configuration and logging
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)
	log.Info("starting", zap.String("name", cfg.Name), zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d := cfg.StartupDelay.Duration; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil
		}
	}

	// 2. Peer set from the hostsfile and/or etcd
	self := gossip.NodeID(cfg.Name)
	port := strconv.Itoa(cfg.Port)
	peers, addrs, closeDiscovery, err := loadPeers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDiscovery()) }()

	if !peers.Contains(self) {
		return errors.Wrapf(gossip.ErrSelfNotInPeers, "hostname %q not found in hostsfile", cfg.Name)
	}

	// 3. Bind the UDP socket
	tr, err := gossip.ListenUDP(net.JoinHostPort("", port), log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, tr.Close()) }()

	// 4. Prober
	prober, err := gossip.New(gossip.Config{
		Self:           self,
		ReceiveTimeout: cfg.ReceiveTimeout.Duration,
		RoundInterval:  cfg.RoundInterval.Duration,
		ExitOnReady:    cfg.ExitOnReady,
		AddrFor: func(id gossip.NodeID) string {
			if a, ok := addrs[id]; ok {
				return a
			}
			return node.NormalizeHostPort(string(id), port)
		},
		OnReady: func() { fmt.Fprintln(c.App.Writer, "READY") },
	}, peers, tr, log)
	if err != nil {
		return err
	}

	// 5. Optional status endpoint
	if cfg.HTTP.Addr != "" {
		n := node.NewNode(prober, cfg.HTTP.Addr, log)
		srv := &http.Server{Addr: n.Addr(), Handler: n.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status endpoint", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info("status endpoint listening", zap.String("addr", n.Addr()))
	}

	// 6. Probe until ready or cancelled
	if err := prober.Run(ctx); err != nil {
		return err
	}
	log.Info("stopped", zap.Bool("ready", prober.Ready()))
	return nil
}

// loadPeers merges the hostsfile with the etcd registry. addrs holds the
// registered address of etcd peers; other peers are pinged on name:port.
func loadPeers(ctx context.Context, cfg config.Config, log *zap.Logger) (*gossip.PeerSet, map[gossip.NodeID]string, func() error, error) {
	noop := func() error { return nil }
	peers := gossip.NewPeerSet()
	addrs := make(map[gossip.NodeID]string)

	if cfg.Hostfile != "" {
		ps, dups, err := hostfile.Load(cfg.Hostfile)
		if err != nil {
			return nil, nil, noop, err
		}
		for _, d := range dups {
			log.Warn("duplicate hostname ignored", zap.String("host", d))
		}
		for _, name := range ps.Names() {
			peers.Add(name)
		}
	}
	if len(cfg.Etcd.Endpoints) == 0 {
		return peers, addrs, noop, nil
	}

	found, closeFn, err := bootstrapEtcd(ctx, cfg, log.Named("discovery"))
	if err != nil {
		return nil, nil, noop, err
	}
	port := strconv.Itoa(cfg.Port)
	for _, p := range found {
		peers.Add(gossip.NodeID(p.ID))
		addrs[gossip.NodeID(p.ID)] = node.NormalizeHostPort(p.Addr, port)
	}
	return peers, addrs, closeFn, nil
}

// bootstrapEtcd registers this node and lists the registry. The returned
// func revokes the registration and closes the client.
func bootstrapEtcd(ctx context.Context, cfg config.Config, log *zap.Logger) ([]discovery.Peer, func() error, error) {
	log.Info("creating etcd client", zap.Strings("endpoints", cfg.Etcd.Endpoints))
	etcd, err := discovery.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout.Duration)
	if err != nil {
		return nil, nil, err
	}

	selfAddr := node.NormalizeHostPort(cfg.Name, strconv.Itoa(cfg.Port))
	log.Info("registering", zap.String("name", cfg.Name), zap.String("addr", selfAddr))
	leaseID, cancel, err := discovery.RegisterNode(ctx, etcd, cfg.Etcd.Prefix, cfg.Name, selfAddr, cfg.Etcd.TTL, log)
	if err != nil {
		return nil, nil, multierr.Append(err, etcd.Close())
	}
	closeFn := func() error {
		cancel()
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		_, rerr := etcd.Revoke(rctx, leaseID)
		return multierr.Append(errors.Wrap(rerr, "revoke lease"), etcd.Close())
	}

	found, err := discovery.GetPeers(ctx, etcd, cfg.Etcd.Prefix)
	if err != nil {
		return nil, nil, multierr.Append(err, closeFn())
	}
	for _, p := range found {
		log.Info("bootstrap", zap.String("peer", p.ID), zap.String("addr", p.Addr))
	}
	return found, closeFn, nil
}
