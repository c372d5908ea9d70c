package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/velum/chaind/core/arbitrary"
	"github.com/velum/chaind/core/blobstore"
	"github.com/velum/chaind/core/p2p"
	"github.com/velum/chaind/core/repository"
	"github.com/velum/chaind/core/settings"
	"github.com/velum/chaind/lib/logger"
	"github.com/velum/chaind/rpc/wire"
)

var log, _ = logger.New("chaind")

const housekeepingInterval = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "chaind",
		Usage: "blockchain node with arbitrary data distribution",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "p2p listen address, overrides NODE_LISTEN_ADDR",
			},
			&cli.StringSliceFlag{
				Name:  "peer",
				Usage: "bootstrap peer address, repeatable",
			},
		},
		Commands: []*cli.Command{
			startCmd,
			addCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln("startup", "ERROR", err)
	}
}

var startCmd = &cli.Command{
	Name:   "start",
	Usage:  "Run the node",
	Action: runNode,
}

func runNode(ctx *cli.Context) error {
	cfg, err := settings.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}
	if addr := ctx.String("listen"); addr != "" {
		cfg.Node.ListenAddr = addr
	}
	if peers := ctx.StringSlice("peer"); len(peers) > 0 {
		cfg.Node.BootstrapPeers = peers
	}

	repo, err := repository.Open(cfg.Repository.Path)
	if err != nil {
		log.Errorw("startup", "error", "failed to open repository", "err", err)
		return err
	}
	defer repo.Close()

	blobs, err := blobstore.NewStore(cfg.Blobs.Path)
	if err != nil {
		log.Errorw("startup", "error", "failed to open blob store", "err", err)
		return err
	}

	// The network delivers inbound messages to the manager and the manager
	// broadcasts through the network, so the manager is bound after both
	// exist.
	var manager *arbitrary.Manager
	network := p2p.NewNetwork(cfg.Node.ListenAddr, func(p *p2p.Peer, msg *wire.Message) {
		if manager != nil {
			manager.HandleMessage(p, msg)
		}
	})

	manager = arbitrary.NewManager(repo, &networkAdapter{network}, blobs, arbitrary.Options{
		MinBlockchainPeers: cfg.Node.MinBlockchainPeers,
		HasMisbehaved: func(peer arbitrary.Peer) bool {
			p, ok := peer.(*p2p.Peer)
			return ok && p.Misbehaved()
		},
	})

	if err := network.Start(); err != nil {
		log.Errorw("startup", "error", "failed to start p2p listener", "err", err)
		return err
	}
	defer network.Shutdown()

	for _, addr := range cfg.Node.BootstrapPeers {
		if err := network.Connect(addr); err != nil {
			log.Warnw("startup", "status", "bootstrap peer unreachable", "peer", addr, "err", err)
		}
	}

	manager.Start()
	defer manager.Shutdown()

	log.Infow("startup", "status", "node started", "address", network.ListenAddr())
	defer log.Infow("shutdown", "status", "node stopped")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	housekeeping := time.NewTicker(housekeepingInterval)
	defer housekeeping.Stop()

	for {
		select {
		case <-housekeeping.C:
			manager.CleanupRequestCache(time.Now().UnixMilli())
		case <-shutdown:
			log.Infow("shutdown", "status", "node stopping")
			return nil
		}
	}
}
