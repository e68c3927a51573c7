// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/blockchain"
	"github.com/randchain/randchaind/core/message"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
	"github.com/randchain/randchaind/services/common/progresslog"
)

const (
	// defaultMaxPeers sizes the message channel when the caller does not
	// specify a peer limit.
	defaultMaxPeers = 32

	// defaultBanThreshold is the misbehavior score at which a peer is
	// banned when the caller does not override it.
	defaultBanThreshold = 100

	// defaultBanDuration is how long a banned address sits out.
	defaultBanDuration = time.Hour

	// maxRequestBatch caps the number of block downloads scheduled in a
	// single pass over the header frontier.
	maxRequestBatch = 512

	// minInFlightBlocks is the low-water mark of outstanding downloads;
	// dropping below it triggers another scheduling pass.
	minInFlightBlocks = 10

	// expireTickInterval is how often the block handler sweeps for timed
	// out requests and stalled sync peers.
	expireTickInterval = 5 * time.Second

	// maxStallDuration is how long the sync peer may go without
	// delivering anything useful before it is replaced.
	maxStallDuration = 3 * time.Minute
)

// Block manager health metrics.  Registered on the default registry so the
// node can periodically dump them alongside the chain metrics.
var (
	metricsProcessedBlocks = metrics.GetOrRegisterCounter("blkmgr.blocks.processed", nil)
	metricsRejectedBlocks  = metrics.GetOrRegisterCounter("blkmgr.blocks.rejected", nil)
	metricsReorgs          = metrics.GetOrRegisterCounter("chain.reorgs", nil)
	metricsConnectedPeers  = metrics.GetOrRegisterGauge("blkmgr.peers.connected", nil)
	metricsInflight        = metrics.GetOrRegisterGauge("blkmgr.requests.inflight", nil)
	metricsOrphans         = metrics.GetOrRegisterGauge("chain.orphans", nil)
)

// SyncState identifies the phase of chain synchronization the block manager
// is in.  The value regresses when fresh announcements show the chain has
// moved past what was downloaded.
type SyncState int32

const (
	// StateIdle means no peer is available to sync from.
	StateIdle SyncState = iota

	// StateHeadersSyncing means headers are being streamed from the sync
	// peer to extend the best known header.
	StateHeadersSyncing

	// StateBlocksSyncing means bodies for known headers are being
	// downloaded and verified.
	StateBlocksSyncing

	// StateSynced means the active tip has caught up with everything the
	// connected peers have announced.
	StateSynced
)

// String returns the SyncState in human-readable form.
func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeadersSyncing:
		return "headerssyncing"
	case StateBlocksSyncing:
		return "blockssyncing"
	case StateSynced:
		return "synced"
	}
	return fmt.Sprintf("unknown state (%d)", int32(s))
}

// newPeerMsg signifies a newly connected peer to the block handler.
type newPeerMsg struct {
	peer Peer
}

// donePeerMsg signifies a newly disconnected peer to the block handler.
type donePeerMsg struct {
	peer Peer
}

// invMsg packages an inv message and the peer it came from together so the
// block handler has access to that information.
type invMsg struct {
	inv  *message.MsgInv
	peer Peer
}

// headersMsg packages a headers message and the peer it came from together
// so the block handler has access to that information.
type headersMsg struct {
	headers *message.MsgHeaders
	peer    Peer
}

// blockMsg packages a block message and the peer it came from together so
// the block handler has access to that information.
type blockMsg struct {
	block *types.SerializedBlock
	peer  Peer
	reply chan struct{}
}

// processBlockResponse is a response sent to the reply channel of a
// processBlockMsg.
type processBlockResponse struct {
	isMainChain bool
	isOrphan    bool
	err         error
}

// processBlockMsg is a message type to be sent across the message channel
// for requested a block is processed.  Note this call differs from blockMsg
// above in that blockMsg is intended for blocks that came from peers and
// have extra handling whereas this message essentially is just a concurrent
// safe way to call ProcessBlock on the internal block chain instance.
type processBlockMsg struct {
	block *types.SerializedBlock
	flags blockchain.BehaviorFlags
	reply chan processBlockResponse
}

// isCurrentMsg is a message type to be sent across the message channel for
// requesting whether or not the block manager believes it is synced with
// the currently connected peers.
type isCurrentMsg struct {
	reply chan bool
}

// getPeersMsg requests the block manager's view of the connected peers.
type getPeersMsg struct {
	reply chan []*PeerInfo
}

// Config is the block manager configuration.
type Config struct {
	// DB is the store the chain commits to.  Required.
	DB database.DB

	// Params identifies the network being synced.  Required.
	Params *params.Params

	// Verifier is the verification capability.  Required.
	Verifier spow.Verifier

	// TrustLevel and TrustEdge configure how much verification applies
	// below the trusted block.  See the blockchain package.
	TrustLevel spow.Level
	TrustEdge  *hash.Hash

	// TimeSource is the wall clock used by the chain; nil means time.Now.
	TimeSource func() time.Time

	// MaxOrphans bounds the chain's orphan pool.  Zero selects the
	// default.
	MaxOrphans int

	// MaxPeers bounds the expected number of connected peers and sizes
	// internal queues.  Zero selects the default.
	MaxPeers int

	// BanThreshold is the misbehavior score at which a peer is banned.
	// Zero selects the default; the p2p layer may disable banning by
	// passing its own threshold.
	BanThreshold uint32

	// BanDuration is how long a ban lasts.  Zero selects the default.
	BanDuration time.Duration
}

// BlockManager provides a concurrency safe block manager for handling all
// incoming blocks.
type BlockManager struct {
	started  int32
	shutdown int32

	params       *params.Params
	banThreshold uint32
	banDuration  time.Duration

	chain *blockchain.BlockChain

	// The fields below are owned by the block handler goroutine.
	peers            map[int32]*peerState
	banned           map[string]time.Time
	syncPeer         *peerState
	requests         *requestTracker
	lastProgressTime time.Time
	progressLogger   *progresslog.BlockProgressLogger

	// syncState is read concurrently through SyncState and written only
	// by the block handler.
	syncState int32

	msgChan chan interface{}
	wg      sync.WaitGroup
	quit    chan struct{}
}

// New returns a new block manager.  Use Start to begin processing
// asynchronous block and inv updates.
func New(config *Config) (*BlockManager, error) {
	maxPeers := config.MaxPeers
	if maxPeers == 0 {
		maxPeers = defaultMaxPeers
	}
	banThreshold := config.BanThreshold
	if banThreshold == 0 {
		banThreshold = defaultBanThreshold
	}
	banDuration := config.BanDuration
	if banDuration == 0 {
		banDuration = defaultBanDuration
	}

	bm := BlockManager{
		params:         config.Params,
		banThreshold:   banThreshold,
		banDuration:    banDuration,
		peers:          make(map[int32]*peerState),
		banned:         make(map[string]time.Time),
		requests:       newRequestTracker(),
		progressLogger: progresslog.NewBlockProgressLogger("Processed", log),
		msgChan:        make(chan interface{}, maxPeers*3),
		quit:           make(chan struct{}),
	}

	// Create a new block chain instance with the appropriate
	// configuration.
	var err error
	bm.chain, err = blockchain.New(&blockchain.Config{
		DB:            config.DB,
		Params:        config.Params,
		Verifier:      config.Verifier,
		TrustLevel:    config.TrustLevel,
		TrustEdge:     config.TrustEdge,
		TimeSource:    config.TimeSource,
		MaxOrphans:    config.MaxOrphans,
		Notifications: bm.handleNotifyMsg,
	})
	if err != nil {
		return nil, err
	}

	best := bm.chain.BestSnapshot()
	log.Infof("Block manager initialized (tip %v, height %d)", best.Hash,
		best.Height)
	return &bm, nil
}

// Start begins the core block handler which processes block and inv
// messages.
func (b *BlockManager) Start() {
	// Already started?
	if atomic.AddInt32(&b.started, 1) != 1 {
		return
	}

	log.Trace("Starting block manager")
	b.wg.Add(1)
	go b.blockHandler()
}

// Stop gracefully shuts down the block manager by stopping all asynchronous
// handlers and waiting for them to finish.
func (b *BlockManager) Stop() error {
	if atomic.AddInt32(&b.shutdown, 1) != 1 {
		log.Warnf("Block manager is already in the process of " +
			"shutting down")
		return nil
	}

	log.Infof("Block manager shutting down")
	close(b.quit)
	b.wg.Wait()
	return nil
}

// blockHandler is the main handler for the block manager.  It must be run as
// a goroutine.  It processes block and inv messages in a separate goroutine
// from the peer handlers so the block (MsgBlock) messages are handled by a
// single thread without needing to lock memory data structures.  This is
// important because the block manager controls which blocks are needed and
// how the fetching should proceed.
func (b *BlockManager) blockHandler() {
	expireTicker := time.NewTicker(expireTickInterval)
	defer expireTicker.Stop()

out:
	for {
		select {
		case m := <-b.msgChan:
			switch msg := m.(type) {
			case *newPeerMsg:
				b.handleNewPeerMsg(msg.peer)

			case *donePeerMsg:
				b.handleDonePeerMsg(msg.peer)

			case *invMsg:
				b.handleInvMsg(msg)

			case *headersMsg:
				b.handleHeadersMsg(msg)

			case *blockMsg:
				b.handleBlockMsg(msg)
				if msg.reply != nil {
					msg.reply <- struct{}{}
				}

			case processBlockMsg:
				isMainChain, isOrphan, err := b.chain.ProcessBlock(
					msg.block, msg.flags)
				if err == nil {
					metricsProcessedBlocks.Inc(1)
					b.maybeAdvanceState()
				}
				msg.reply <- processBlockResponse{
					isMainChain: isMainChain,
					isOrphan:    isOrphan,
					err:         err,
				}

			case isCurrentMsg:
				msg.reply <- b.current()

			case getPeersMsg:
				msg.reply <- b.peerInfos()

			default:
				log.Warnf("Invalid message type in block handler: %T", msg)
			}

		case <-expireTicker.C:
			b.handleExpiredRequests()

		case <-b.quit:
			break out
		}
	}

	b.wg.Done()
	log.Trace("Block handler done")
}

// handleNotifyMsg handles notifications from blockchain.  It does things
// such as announce accepted blocks to the connected peers.
//
// The chain calls it synchronously from ProcessBlock, which only ever runs
// on the block handler goroutine, so touching the peer state here is safe.
func (b *BlockManager) handleNotifyMsg(notification *blockchain.Notification) {
	switch notification.Type {
	// A block has been accepted into the block chain.  Relay it to other
	// peers.
	case blockchain.BlockAccepted:
		band, ok := notification.Data.(*blockchain.BlockAcceptedNotifyData)
		if !ok {
			log.Warnf("Chain accepted notification is not " +
				"BlockAcceptedNotifyData")
			break
		}

		// Resolve the height of peers that announced this block before
		// it was known.
		blockHash := band.Block.Hash()
		blockHeight := band.Block.Block().Header.Height
		for _, sp := range b.peers {
			if sp.lastAnnouncedBlock != nil &&
				sp.lastAnnouncedBlock.IsEqual(blockHash) {
				sp.updateHeight(blockHeight)
				sp.lastAnnouncedBlock = nil
			}
		}

		// Don't relay if we are not current.  Other peers that are
		// current should already know about it.
		if !b.chain.IsCurrent() {
			break
		}
		b.relayInventory(band.Block)

	case blockchain.NewChainTip:
		data, ok := notification.Data.(*blockchain.NewChainTipNotifyData)
		if !ok {
			log.Warnf("New chain tip notification is malformed")
			break
		}
		log.Debugf("New chain tip %v (height %d)", data.Hash, data.Height)

	case blockchain.Reorganization:
		metricsReorgs.Inc(1)
		data, ok := notification.Data.(*blockchain.ReorganizationNotifyData)
		if !ok {
			log.Warnf("Chain reorganization notification is malformed")
			break
		}
		log.Infof("Chain reorganized away from %v (height %d) to %v "+
			"(height %d)", data.OldHash, data.OldHeight, data.NewHash,
			data.NewHeight)
	}
}

// relayInventory announces the passed block to every connected peer that
// does not already know about it.
func (b *BlockManager) relayInventory(block *types.SerializedBlock) {
	iv := message.NewInvVect(message.InvTypeBlock, block.Hash())
	for _, sp := range b.peers {
		if sp.isKnownInventory(iv) {
			continue
		}
		sp.addKnownInventory(iv)
		if err := sp.peer.PushInv([]*message.InvVect{iv}); err != nil {
			log.Debugf("Failed to relay inventory to peer %s: %v",
				sp.peer.Addr(), err)
		}
	}
}

// current returns true if we believe we are synced with our peers, false if
// we still have blocks to check.
func (b *BlockManager) current() bool {
	if !b.chain.IsCurrent() {
		return false
	}

	// If blockChain thinks we are current and we have no syncPeer it
	// is probably right.
	if b.syncPeer == nil {
		return true
	}

	// No matter what chain thinks, if we are below the block we are
	// syncing to we are not current.
	if b.chain.BestSnapshot().Height < b.syncPeer.lastHeight {
		return false
	}
	return true
}

// setSyncState publishes a sync phase transition.
func (b *BlockManager) setSyncState(state SyncState) {
	old := SyncState(atomic.LoadInt32(&b.syncState))
	if old == state {
		return
	}
	atomic.StoreInt32(&b.syncState, int32(state))
	log.Infof("Sync state: %v -> %v", old, state)
}

// maybeAdvanceState flips the phase to synced once nothing is outstanding
// and the chain agrees it has caught up.
func (b *BlockManager) maybeAdvanceState() {
	if b.requests.size() != 0 {
		return
	}
	if len(b.chain.HeaderFrontier(1)) != 0 {
		return
	}
	if b.current() {
		b.setSyncState(StateSynced)
	}
}

// startSync will choose the best peer among the available candidate peers to
// download/sync the blockchain from.  When syncing is already running, it
// simply returns.
func (b *BlockManager) startSync() {
	// Return now if we're already syncing.
	if b.syncPeer != nil {
		return
	}

	best := b.chain.BestSnapshot()
	var bestPeer *peerState
	for _, sp := range b.peers {
		if !sp.syncCandidate {
			continue
		}

		// A peer that has nothing past our tip cannot move the sync
		// forward.
		if sp.lastHeight <= best.Height {
			continue
		}

		// The best sync candidate is the most updated peer.
		if bestPeer == nil || sp.lastHeight > bestPeer.lastHeight {
			bestPeer = sp
		}
	}

	if bestPeer == nil {
		if b.current() {
			b.setSyncState(StateSynced)
		} else {
			b.setSyncState(StateIdle)
		}
		return
	}

	// Start by asking for headers from the best known header forward, so
	// bodies still in flight are not re-announced.
	locator := b.chain.BestHeaderLocator()
	if err := bestPeer.peer.PushGetHeaders(locator, &hash.ZeroHash); err != nil {
		log.Errorf("Failed to push getheaders to peer %s: %v",
			bestPeer.peer.Addr(), err)
		return
	}

	log.Infof("Syncing to block height %d from peer %s",
		bestPeer.lastHeight, bestPeer.peer.Addr())
	b.syncPeer = bestPeer
	b.lastProgressTime = time.Now()
	b.setSyncState(StateHeadersSyncing)
}

// fetchBlocks schedules downloads for every block the header tree knows
// about but whose body has not been stored, plus the missing parents the
// orphan pool is waiting on.  Work is spread across peers with spare
// capacity, the sync peer first, and a hash is never in flight with more
// than one peer.
func (b *BlockManager) fetchBlocks() {
	need := b.chain.HeaderFrontier(maxRequestBatch)
	need = append(need, b.chain.OrphanParents()...)
	if len(need) == 0 {
		b.maybeAdvanceState()
		return
	}

	batches := make(map[int32][]*message.InvVect)
	deadline := time.Now().Add(requestTimeout)
	for _, h := range need {
		if b.requests.inflight(h) {
			continue
		}
		sp := b.pickDownloadPeer()
		if sp == nil {
			// Every peer is at capacity; the next delivery or
			// expiry frees room.
			break
		}
		peerID := sp.peer.ID()
		if !b.requests.track(h, peerID, deadline) {
			continue
		}
		batches[peerID] = append(batches[peerID],
			message.NewInvVect(message.InvTypeBlock, h))
	}

	for peerID, invs := range batches {
		sp := b.peers[peerID]
		if err := sp.peer.PushGetData(invs); err != nil {
			log.Warnf("Failed to push getdata to peer %s: %v",
				sp.peer.Addr(), err)
		}
	}
	metricsInflight.Update(int64(b.requests.size()))

	if b.requests.size() > 0 {
		b.setSyncState(StateBlocksSyncing)
	}
}

// pickDownloadPeer returns a peer with spare download capacity, preferring
// the sync peer, or nil when everyone is saturated.
func (b *BlockManager) pickDownloadPeer() *peerState {
	if b.syncPeer != nil &&
		b.requests.peerLoad(b.syncPeer.peer.ID()) < maxInflightPerPeer {
		return b.syncPeer
	}
	for _, sp := range b.peers {
		if !sp.syncCandidate {
			continue
		}
		if b.requests.peerLoad(sp.peer.ID()) < maxInflightPerPeer {
			return sp
		}
	}
	return nil
}

// handleExpiredRequests reclaims timed out block downloads, penalizes the
// peers that sat on them and reschedules the work.  It also replaces a sync
// peer that has stalled the whole download.
func (b *BlockManager) handleExpiredRequests() {
	expired := b.requests.expireDue(time.Now())
	for _, req := range expired {
		log.Debugf("Block request %v to peer id %d timed out", req.hash,
			req.peerID)
		if sp, exists := b.peers[req.peerID]; exists {
			b.addBanScore(sp, 10, fmt.Sprintf("block %v not "+
				"delivered in time", req.hash))
		}
	}
	if len(expired) > 0 {
		metricsInflight.Update(int64(b.requests.size()))
		b.fetchBlocks()
	}

	if b.syncPeer != nil &&
		time.Since(b.lastProgressTime) > maxStallDuration {
		log.Warnf("Sync peer %s is stalling the download -- replacing",
			b.syncPeer.peer.Addr())
		b.syncPeer.syncCandidate = false
		b.replaceSyncPeer()
	}
}

// replaceSyncPeer drops the current sync peer, reassigns its outstanding
// work and starts over with the next best candidate.
func (b *BlockManager) replaceSyncPeer() {
	if b.syncPeer == nil {
		return
	}
	freed := b.requests.releasePeer(b.syncPeer.peer.ID())
	b.syncPeer = nil
	b.setSyncState(StateIdle)
	b.startSync()
	if len(freed) > 0 {
		b.fetchBlocks()
	}
}

// peerInfos snapshots the connected peers for the administrative surface.
func (b *BlockManager) peerInfos() []*PeerInfo {
	infos := make([]*PeerInfo, 0, len(b.peers))
	for _, sp := range b.peers {
		infos = append(infos, &PeerInfo{
			ID:        sp.peer.ID(),
			Addr:      sp.peer.Addr(),
			Height:    sp.lastHeight,
			BanScore:  sp.banScore,
			Inflight:  b.requests.peerLoad(sp.peer.ID()),
			SyncPeer:  sp == b.syncPeer,
			Candidate: sp.syncCandidate,
		})
	}
	return infos
}
