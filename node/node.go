// Copyright (c) 2017-2020 The randchain developers

// Package node assembles the storage, chain, block manager, randomness feed
// and rpc subsystems into a runnable server.
package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/randchain/randchaind/config"
	"github.com/randchain/randchaind/database"
	"github.com/randchain/randchaind/database/leveldb"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/rpc"
	"github.com/randchain/randchaind/services/blkmgr"
	"github.com/randchain/randchaind/services/random"
)

// metricsDumpInterval is how often the registered runtime metrics are
// written to the log.
const metricsDumpInterval = 10 * time.Minute

// Node is the server container tying the subsystems together.
type Node struct {
	started  int32
	shutdown int32

	cfg *config.Config

	db           database.DB
	blockManager *blkmgr.BlockManager
	feed         *random.Feed
	rpcServer    *rpc.Server

	startupTime int64

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewNode opens the block store and wires the subsystems according to the
// passed configuration.  Nothing runs until Start.
func NewNode(cfg *config.Config) (*Node, error) {
	n := &Node{
		cfg:  cfg,
		quit: make(chan struct{}),
	}

	db, err := leveldb.NewDB(cfg.DataDir, cfg.DbCacheSize)
	if err != nil {
		return nil, err
	}
	n.db = db

	n.blockManager, err = blkmgr.New(&blkmgr.Config{
		DB:           db,
		Params:       cfg.ActiveParams,
		Verifier:     spow.NewVerifier(),
		TrustLevel:   cfg.TrustLvl,
		TrustEdge:    cfg.TrustHash,
		MaxPeers:     cfg.MaxPeers,
		BanThreshold: cfg.BanThreshold,
		BanDuration:  cfg.BanDuration,
		MaxOrphans:   cfg.MaxOrphans,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	n.feed = random.NewFeed(n.blockManager.GetChain())

	if !cfg.NoRPC {
		n.rpcServer = rpc.NewServer(&rpc.Config{
			Listen:       cfg.RPCListener,
			BlockManager: n.blockManager,
			Feed:         n.feed,
			Params:       cfg.ActiveParams,
		})
	}
	return n, nil
}

// BlockManager exposes the block manager so the p2p layer can register
// peers and queue messages.
func (n *Node) BlockManager() *blkmgr.BlockManager {
	return n.blockManager
}

// Feed exposes the randomness feed.
func (n *Node) Feed() *random.Feed {
	return n.feed
}

// Start brings every subsystem up.
func (n *Node) Start() error {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return fmt.Errorf("node is already started")
	}

	log.Info("Starting node")
	n.startupTime = time.Now().Unix()
	n.blockManager.Start()
	if n.rpcServer != nil {
		n.rpcServer.Start()
	}

	n.wg.Add(1)
	go n.metricsDumper()
	return nil
}

// Stop shuts the subsystems down in the reverse order they were started and
// blocks until they have finished.
func (n *Node) Stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Warnf("Node is already in the process of shutting down")
		return nil
	}

	log.Info("Stopping node")
	close(n.quit)

	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			log.Errorf("Failed to stop rpc server: %v", err)
		}
	}
	if err := n.blockManager.Stop(); err != nil {
		log.Errorf("Failed to stop block manager: %v", err)
	}
	n.wg.Wait()

	if err := n.db.Close(); err != nil {
		return err
	}
	log.Infof("Node stopped (uptime %s)",
		time.Since(time.Unix(n.startupTime, 0)).Round(time.Second))
	return nil
}

// metricsDumper periodically writes the registered subsystem metrics to the
// log at debug level.
func (n *Node) metricsDumper() {
	defer n.wg.Done()

	ticker := time.NewTicker(metricsDumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.DefaultRegistry.Each(func(name string, i interface{}) {
				switch m := i.(type) {
				case metrics.Counter:
					log.Debugf("metric %s: %d", name, m.Count())
				case metrics.Gauge:
					log.Debugf("metric %s: %d", name, m.Value())
				}
			})
		case <-n.quit:
			return
		}
	}
}
