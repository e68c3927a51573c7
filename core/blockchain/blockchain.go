// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
)

// maxTipAge is how far behind the wall clock the active tip may be before
// IsCurrent reports the chain as still syncing.
const maxTipAge = 24 * time.Hour

// BlockChain provides functions for working with the block chain.  It
// includes functionality such as rejecting duplicate blocks, ensuring blocks
// follow all rules, orphan handling and best chain selection with reorg
// handling.
type BlockChain struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	db            database.DB
	params        *params.Params
	verifier      spow.Verifier
	trustLevel    spow.Level
	trustEdge     *hash.Hash
	notifications NotificationCallback
	timeSource    func() time.Time

	// fullVerification latches to 1 once the trust edge block has been
	// observed, switching every later check to the full level on every
	// branch.  Accessed atomically.
	fullVerification uint32

	// chainLock protects concurrent access to the vast majority of the
	// fields in this struct below this point.
	chainLock sync.RWMutex

	// index houses the entire block tree including headers whose bodies
	// have not arrived yet.  bestChain is the flat view of the current
	// active branch.
	index     *blockIndex
	bestChain *chainView

	// bestHeader is the most-work node whose header has been accepted,
	// regardless of whether its body has been stored yet.  It leads the
	// active tip during header-first sync.  Readers must go through
	// bestHeaderNode since verification can poison the branch it points
	// at after it was cached.
	bestHeader *blockNode

	// deferredTargets holds heavier branch tips whose chain switch was
	// postponed because a body on the joining branch had not arrived
	// yet.  Every successful connect retries them.
	deferredTargets map[hash.Hash]*blockNode

	// These fields house the orphan pool.  Orphans are blocks whose
	// parent is not yet in the index.
	maxOrphans   int
	orphanLock   sync.RWMutex
	orphans      map[hash.Hash]*orphanBlock
	prevOrphans  map[hash.Hash][]*orphanBlock
	oldestOrphan *orphanBlock

	// These fields coalesce and bound concurrent body verification.
	verifyMtx      sync.Mutex
	verifyInflight map[hash.Hash]*verifyJob
	verifySlots    chan struct{}

	// stateLock protects the best chain state snapshot so callers can
	// read it without contending on the chain lock.
	stateLock     sync.RWMutex
	stateSnapshot *BestState
}

// BestState houses information about the current best block and other info
// related to the state of the main chain as it exists from the point of view
// of the current best block.
//
// The BestSnapshot method can be used to obtain access to this information
// in a concurrent safe manner and the data will not be changed out from
// under the caller when chain state changes occur as the function name
// implies.  However, the returned snapshot must be treated as immutable
// since it is shared by all callers.
type BestState struct {
	Hash      hash.Hash // The hash of the block.
	Height    uint64    // The height of the block.
	Bits      uint32    // The difficulty bits of the block.
	TotalWork *big.Int  // Cumulative work of the chain.
	Timestamp time.Time // The timestamp of the block.
}

// newBestState returns a new best stats instance for the given parameters.
func newBestState(node *blockNode) *BestState {
	return &BestState{
		Hash:      node.hash,
		Height:    node.height,
		Bits:      node.bits,
		TotalWork: new(big.Int).Set(node.workSum),
		Timestamp: time.Unix(node.timestamp, 0),
	}
}

// Config is a descriptor which specifies the blockchain instance
// configuration.
type Config struct {
	// DB is the backing store for committed chain state.  It is
	// required.
	DB database.DB

	// Params identifies the network the chain is associated with.  It is
	// required.
	Params *params.Params

	// Verifier is the verification capability applied to every candidate
	// block.  It is required.
	Verifier spow.Verifier

	// TrustLevel selects how much of the verification capability is
	// applied below the trust edge.
	TrustLevel spow.Level

	// TrustEdge, when set, names the block at which a reduced trust
	// level expires.  The edge block and all of its descendants are
	// verified at the full level regardless of TrustLevel.
	TrustEdge *hash.Hash

	// Notifications defines a callback to which notifications will be
	// sent when various events take place.  This field can be nil if the
	// caller is not interested in receiving notifications.
	Notifications NotificationCallback

	// TimeSource defines the wall clock used for timestamp checks and
	// the IsCurrent heuristic.  Nil defaults to time.Now.
	TimeSource func() time.Time

	// MaxOrphans bounds the orphan pool.  Zero selects the default.
	MaxOrphans int
}

// New returns a BlockChain instance using the provided configuration
// details.  On a fresh store the genesis block is committed; otherwise the
// persisted main chain is replayed into the in-memory index so the instance
// resumes exactly where it left off.
func New(config *Config) (*BlockChain, error) {
	if config.DB == nil {
		return nil, AssertError("blockchain.New database is nil")
	}
	if config.Params == nil {
		return nil, AssertError("blockchain.New chain parameters nil")
	}
	if config.Verifier == nil {
		return nil, AssertError("blockchain.New verifier is nil")
	}
	if config.TrustLevel < spow.LevelFull && config.TrustEdge == nil {
		return nil, ruleError(ErrBadTrustEdge, fmt.Sprintf(
			"trust level %v requires a verification edge", config.TrustLevel))
	}

	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = defaultTimeSource
	}
	maxOrphans := config.MaxOrphans
	if maxOrphans == 0 {
		maxOrphans = maxOrphanBlocks
	}

	b := &BlockChain{
		db:              config.DB,
		params:          config.Params,
		verifier:        config.Verifier,
		trustLevel:      config.TrustLevel,
		trustEdge:       config.TrustEdge,
		notifications:   config.Notifications,
		timeSource:      timeSource,
		maxOrphans:      maxOrphans,
		index:           newBlockIndex(),
		bestChain:       newChainView(nil),
		orphans:         make(map[hash.Hash]*orphanBlock),
		prevOrphans:     make(map[hash.Hash][]*orphanBlock),
		deferredTargets: make(map[hash.Hash]*blockNode),
		verifyInflight:  make(map[hash.Hash]*verifyJob),
		verifySlots:     make(chan struct{}, maxVerifyWorkers),
	}

	if err := b.initChainState(); err != nil {
		return nil, err
	}

	// A chain that already holds the trust edge never drops back to the
	// reduced verification level.
	if b.trustEdge != nil {
		if node := b.index.LookupNode(b.trustEdge); node != nil &&
			b.index.NodeStatus(node).HaveData() {
			atomic.StoreUint32(&b.fullVerification, 1)
		}
	}

	tip := b.bestChain.Tip()
	log.Infof("Chain state loaded (height %d, hash %v)", tip.height, tip.hash)
	return b, nil
}

// initChainState attempts to load and initialize the chain state from the
// database.  When the db does not yet contain any chain state, both it and
// the chain state are initialized to the genesis block.
func (b *BlockChain) initChainState() error {
	tipState, err := b.db.FetchTip()
	if err == database.ErrTipNotFound {
		return b.createChainState()
	}
	if err != nil {
		return err
	}

	// Replay the persisted main chain into the index.  Every replayed
	// block was fully committed, so its status is restored to the stored
	// and valid floor directly.
	var parent *blockNode
	for height := uint64(0); height <= tipState.Height; height++ {
		h, err := b.db.FetchMainChainHash(height)
		if err != nil {
			return AssertError(fmt.Sprintf("main chain index "+
				"missing height %d below tip %d", height,
				tipState.Height))
		}
		block, err := b.db.FetchBlock(h)
		if err != nil {
			return AssertError(fmt.Sprintf("main chain block %v "+
				"at height %d not stored", h, height))
		}
		node := newBlockNode(&block.Block().Header, parent)
		if !node.hash.IsEqual(h) {
			return AssertError(fmt.Sprintf("stored block at "+
				"height %d hashes to %v, index says %v", height,
				node.hash, h))
		}
		b.index.AddNode(node)
		b.index.SetStatusFlags(node, statusHeaderValid|statusBodyValid|
			statusDataStored|statusValid)
		parent = node
	}
	if !parent.hash.IsEqual(&tipState.Hash) {
		return AssertError(fmt.Sprintf("replayed tip %v does not "+
			"match stored tip %v", parent.hash, tipState.Hash))
	}

	b.bestChain.SetTip(parent)
	b.bestHeader = parent
	b.stateSnapshot = newBestState(parent)
	return nil
}

// createChainState initializes both the database and the chain state to the
// genesis block.  This includes creating the necessary metadata, so it must
// only be called on an uninitialized database.
func (b *BlockChain) createChainState() error {
	genesis := types.NewBlock(b.params.GenesisBlock)
	genesis.SetOrder(0)

	node := newBlockNode(&genesis.Block().Header, nil)
	b.index.AddNode(node)
	b.index.SetStatusFlags(node, statusHeaderValid|statusBodyValid|
		statusDataStored|statusValid)

	if err := b.db.PutBlock(genesis); err != nil {
		return err
	}
	if err := b.db.CommitReorg(nil, []*types.SerializedBlock{genesis}); err != nil {
		return err
	}

	b.bestChain.SetTip(node)
	b.bestHeader = node
	b.stateSnapshot = newBestState(node)
	return nil
}

// BestSnapshot returns information about the current best chain block and
// related state as of the current point in time.  The returned instance must
// be treated as immutable since it is shared by all callers.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestSnapshot() *BestState {
	b.stateLock.RLock()
	snapshot := b.stateSnapshot
	b.stateLock.RUnlock()
	return snapshot
}

// HaveBlock returns whether or not the chain instance has the block
// represented by the passed hash.  This includes checking the various places
// a block can be: part of the block tree (either main chain or side chain)
// or in the orphan pool.
//
// This function is safe for concurrent access.
func (b *BlockChain) HaveBlock(hash *hash.Hash) bool {
	return b.index.HaveBlock(hash) || b.IsKnownOrphan(hash)
}

// HeaderByHash returns the block header identified by the given hash from
// the block tree or an error if it doesn't exist.
//
// This function is safe for concurrent access.
func (b *BlockChain) HeaderByHash(hash *hash.Hash) (types.BlockHeader, error) {
	node := b.index.LookupNode(hash)
	if node == nil {
		return types.BlockHeader{}, fmt.Errorf("block %v is not known", hash)
	}
	return node.Header(), nil
}

// BlockByHash returns the committed block from the store.  Headers without
// stored bodies and orphans are not reachable through this function.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHash(hash *hash.Hash) (*types.SerializedBlock, error) {
	node := b.index.LookupNode(hash)
	if node == nil || !b.index.NodeStatus(node).HaveData() {
		return nil, database.ErrBlockNotFound
	}
	return b.db.FetchBlock(hash)
}

// MainChainHasBlock reports whether the block with the given hash is in the
// active chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) MainChainHasBlock(hash *hash.Hash) bool {
	node := b.index.LookupNode(hash)
	return node != nil && b.bestChain.Contains(node)
}

// BlockHashByHeight returns the hash of the block at the given height in the
// active chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockHashByHeight(height uint64) (*hash.Hash, error) {
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		return nil, fmt.Errorf("no block at height %d exists", height)
	}
	return &node.hash, nil
}

// BlockHeightByHash returns the height of the block with the given hash in
// the active chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockHeightByHash(hash *hash.Hash) (uint64, error) {
	node := b.index.LookupNode(hash)
	if node == nil || !b.bestChain.Contains(node) {
		return 0, fmt.Errorf("block %v is not in the main chain", hash)
	}
	return node.height, nil
}

// IsCurrent returns whether or not the chain believes it is current.
// Several factors are used to guess, but the key factors that allow the
// chain to believe it is current are:
//  - Latest block has a timestamp newer than 24 hours ago
//  - The best header the tree knows about is not ahead of the active tip
//
// This function is safe for concurrent access.
func (b *BlockChain) IsCurrent() bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	tip := b.bestChain.Tip()
	best := b.bestHeaderNode()
	if best != nil && best.workSum.Cmp(tip.workSum) > 0 {
		return false
	}

	minus24Hours := b.timeSource().Add(-maxTipAge).Unix()
	return tip.timestamp >= minus24Hours
}

// bestHeaderNode returns the most-work header that has not been proven
// invalid.  The cached pointer can sit on a branch that body verification
// poisoned after it was cached; in that case the tree is rescanned.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) bestHeaderNode() *blockNode {
	if b.bestHeader != nil &&
		!b.index.NodeStatus(b.bestHeader).KnownInvalid() {
		return b.bestHeader
	}
	return b.searchBestHeader()
}

// searchBestHeader scans the whole tree for the most-work node that is not
// known invalid.  Slow path behind bestHeaderNode; it only runs while the
// cached best header sits on a poisoned branch.
func (b *BlockChain) searchBestHeader() *blockNode {
	var best *blockNode
	b.index.RLock()
	for _, node := range b.index.index {
		if node.status.KnownInvalid() {
			continue
		}
		if best == nil || betterCandidate(node, best) {
			best = node
		}
	}
	b.index.RUnlock()
	return best
}

// BestHeaderSnapshot returns the hash and height of the most-work header the
// tree knows about.  During header-first sync this leads the active tip.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestHeaderSnapshot() (hash.Hash, uint64) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	best := b.bestHeaderNode()
	return best.hash, best.height
}

// HeaderFrontier returns up to max hashes, in ascending height order, of
// blocks on the best header branch whose bodies have not been stored yet.
// The work scheduler turns these into download requests.
//
// This function is safe for concurrent access.
func (b *BlockChain) HeaderFrontier(max int) []*hash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	var pending []*blockNode
	for node := b.bestHeaderNode(); node != nil &&
		!b.bestChain.Contains(node); node = node.parent {

		status := b.index.NodeStatus(node)
		if status.KnownInvalid() {
			// A poisoned branch yields nothing; the selector will
			// never extend onto it.
			pending = pending[:0]
			continue
		}
		if status.HaveData() {
			// Stored ahead of a gap, nothing to fetch again.
			continue
		}
		pending = append(pending, node)
	}

	// The walk collected tip-first; emit oldest-first so downloads fill
	// the gap from the bottom up.
	if len(pending) > max && max >= 0 {
		pending = pending[len(pending)-max:]
	}
	hashes := make([]*hash.Hash, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		hashes = append(hashes, &pending[i].hash)
	}
	return hashes
}

// connectBlock handles connecting the passed node/block to the end of the
// main chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) connectBlock(node *blockNode, block *types.SerializedBlock) error {
	// Make sure it's extending the end of the best chain.
	prevHash := &block.Block().Header.ParentRoot
	tip := b.bestChain.Tip()
	if !prevHash.IsEqual(&tip.hash) {
		return AssertError("connectBlock must be called with a block " +
			"that extends the main chain")
	}

	block.SetOrder(node.height)
	err := b.db.CommitReorg(nil, []*types.SerializedBlock{block})
	if err != nil {
		return err
	}
	b.index.SetStatusFlags(node, statusDataStored|statusValid)
	b.bestChain.SetTip(node)

	state := newBestState(node)
	b.stateLock.Lock()
	b.stateSnapshot = state
	b.stateLock.Unlock()

	b.sendNotification(BlockConnected, block)
	b.sendNotification(NewChainTip, &NewChainTipNotifyData{
		Hash:   node.hash,
		Height: node.height,
	})
	return nil
}

// reorganizeChain switches the active chain to the branch ending in the
// passed node.  Every block being connected must already have its body
// stored or be supplied as newBlock.  The disconnect and connect sets are
// committed to the store in a single atomic batch and the tip notification
// fires exactly once, after the commit.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) reorganizeChain(node *blockNode, newBlock *types.SerializedBlock) error {
	oldTip := b.bestChain.Tip()
	fork := b.bestChain.FindFork(node)
	if fork == nil {
		return AssertError(fmt.Sprintf("reorganize target %v shares "+
			"no history with the active chain", node.hash))
	}

	// Collect the blocks leaving the active chain, tip first.
	detachBlocks := make([]*types.SerializedBlock, 0)
	for n := oldTip; n != fork; n = n.parent {
		block, err := b.db.FetchBlock(&n.hash)
		if err != nil {
			return err
		}
		block.SetOrder(n.height)
		detachBlocks = append(detachBlocks, block)
	}

	// Collect the branch joining the active chain, fork first.  Bodies
	// of older side chain blocks were stored when they first arrived;
	// only the newest block may still be memory-only.
	attachNodes := make([]*blockNode, 0, node.height-fork.height)
	for n := node; n != fork; n = n.parent {
		attachNodes = append(attachNodes, n)
	}
	attachBlocks := make([]*types.SerializedBlock, 0, len(attachNodes))
	for i := len(attachNodes) - 1; i >= 0; i-- {
		n := attachNodes[i]

		var block *types.SerializedBlock
		if newBlock != nil && n.hash.IsEqual(newBlock.Hash()) {
			block = newBlock
		} else {
			var err error
			block, err = b.db.FetchBlock(&n.hash)
			if err != nil {
				return err
			}
		}
		block.SetOrder(n.height)

		// Blocks that were parked on a side chain may not have been
		// proven to the required level yet.
		if err := b.verifyBody(n, block); err != nil {
			return err
		}
		attachBlocks = append(attachBlocks, block)
	}

	if err := b.db.CommitReorg(detachBlocks, attachBlocks); err != nil {
		return err
	}
	for _, n := range attachNodes {
		b.index.SetStatusFlags(n, statusDataStored|statusValid)
	}
	b.bestChain.SetTip(node)

	state := newBestState(node)
	b.stateLock.Lock()
	b.stateSnapshot = state
	b.stateLock.Unlock()

	if len(detachBlocks) > 0 {
		log.Infof("Chain reorganize: old tip %v (height %d), new tip "+
			"%v (height %d), fork point %v (height %d)", oldTip.hash,
			oldTip.height, node.hash, node.height, fork.hash,
			fork.height)
	} else {
		log.Debugf("Chain extended through stored branch to %v "+
			"(height %d)", node.hash, node.height)
	}

	for _, block := range detachBlocks {
		b.sendNotification(BlockDisconnected, block)
	}
	for _, block := range attachBlocks {
		b.sendNotification(BlockConnected, block)
	}
	// A switch with nothing to disconnect is a plain extension, not a
	// branch change.
	if len(detachBlocks) > 0 {
		b.sendNotification(Reorganization, &ReorganizationNotifyData{
			OldHash:   oldTip.hash,
			OldHeight: oldTip.height,
			NewHash:   node.hash,
			NewHeight: node.height,
		})
	}
	b.sendNotification(NewChainTip, &NewChainTipNotifyData{
		Hash:   node.hash,
		Height: node.height,
	})
	return nil
}

// connectBestChain handles connecting the passed block to the chain while
// respecting proper chain selection according to the most cumulative work.
// In the typical case, the new block simply extends the main chain.  It may
// also be extending (or creating) a side chain which may or may not end up
// becoming the main chain depending on which fork cumulatively has the most
// proof of work.  It returns whether or not the block ended up on the main
// chain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) connectBestChain(node *blockNode, block *types.SerializedBlock, flags BehaviorFlags) (bool, error) {
	fastAdd := flags&BFFastAdd == BFFastAdd

	// We are extending the main (best) chain with a new block.  This is
	// the most common case.
	parentHash := &block.Block().Header.ParentRoot
	tip := b.bestChain.Tip()
	if parentHash.IsEqual(&tip.hash) {
		if fastAdd {
			b.index.SetStatusFlags(node, statusBodyValid)
		} else if err := b.verifyBody(node, block); err != nil {
			return false, err
		}
		if err := b.connectBlock(node, block); err != nil {
			return false, err
		}
		if err := b.connectDeferred(); err != nil {
			return true, err
		}
		return true, nil
	}

	// The block is on a side chain.  Persist the body so a later reorg
	// does not depend on the peer re-sending it, but do not spend effort
	// proving it unless the branch actually wins.
	block.SetOrder(node.height)
	if err := b.db.PutBlock(block); err != nil {
		return false, err
	}
	b.index.SetStatusFlags(node, statusDataStored)

	if !betterCandidate(node, tip) {
		log.Debugf("Block %v extends a side chain at height %d, "+
			"active tip height %d", node.hash, node.height,
			tip.height)
		return false, nil
	}

	// Bodies can arrive out of order, so the switch must not start until
	// every body on the joining branch is on hand.  A switch that aborts
	// midway on a missing ancestor would strand the stored block above
	// the tip with nothing left to re-request it.
	if gap := b.firstMissingBody(node); gap != nil {
		b.deferredTargets[node.hash] = node
		log.Debugf("Deferring chain switch to %v until block %v "+
			"arrives", node.hash, gap)
		return false, nil
	}

	// The side chain has more cumulative work, so this branch becomes
	// the main chain.
	log.Infof("Side chain block %v at height %d overtakes the active chain",
		node.hash, node.height)
	if err := b.reorganizeChain(node, block); err != nil {
		return false, err
	}
	if err := b.connectDeferred(); err != nil {
		return true, err
	}
	return true, nil
}

// firstMissingBody walks the branch ending in node back to the active chain
// and returns the hash of the first block whose body has not been stored,
// or nil when the whole joining branch is on hand.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) firstMissingBody(node *blockNode) *hash.Hash {
	for n := node; n != nil && !b.bestChain.Contains(n); n = n.parent {
		if !b.index.NodeStatus(n).HaveData() {
			return &n.hash
		}
	}
	return nil
}

// connectDeferred retries chain switches that were postponed on a missing
// body.  A target that has lost its lead, turned invalid, or already joined
// the active chain is dropped; one whose branch is now fully on hand wins
// the switch.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) connectDeferred() error {
	for h, node := range b.deferredTargets {
		if b.index.NodeStatus(node).KnownInvalid() ||
			b.bestChain.Contains(node) ||
			!betterCandidate(node, b.bestChain.Tip()) {
			delete(b.deferredTargets, h)
			continue
		}
		if b.firstMissingBody(node) != nil {
			continue
		}
		delete(b.deferredTargets, h)
		if err := b.reorganizeChain(node, nil); err != nil {
			if IsRuleError(err) {
				log.Warnf("Deferred chain switch to %v "+
					"rejected: %v", node.hash, err)
				continue
			}
			return err
		}
	}
	return nil
}
