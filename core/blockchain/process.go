// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFFastAdd may be set to indicate that the block body checks can be
	// skipped because the block has already been proven, such as when it
	// was stored by this node before.
	BFFastAdd BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// HeaderStatus describes the outcome of submitting a header to the block
// tree.
type HeaderStatus int

const (
	// HeaderAccepted means the header linked to a known parent and
	// passed the header-level checks.
	HeaderAccepted HeaderStatus = iota

	// HeaderDuplicate means the header is already in the tree.
	HeaderDuplicate

	// HeaderOrphan means the header's parent is unknown.  The caller
	// should request the gap from its peers.
	HeaderOrphan

	// HeaderRejected means the header failed validation or extends an
	// invalid branch.  The accompanying error carries the rule violated.
	HeaderRejected
)

// String returns the HeaderStatus in human-readable form.
func (s HeaderStatus) String() string {
	switch s {
	case HeaderAccepted:
		return "accepted"
	case HeaderDuplicate:
		return "duplicate"
	case HeaderOrphan:
		return "orphan"
	case HeaderRejected:
		return "rejected"
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// ProcessBlockHeader submits a bare header to the block tree.  Headers link
// into the tree ahead of their bodies during headers-first sync, driving the
// best known header forward so the scheduler knows which bodies to fetch.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlockHeader(header *types.BlockHeader, flags BehaviorFlags) (HeaderStatus, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	blockHash := header.BlockHash()
	if node := b.index.LookupNode(&blockHash); node != nil {
		if b.index.NodeStatus(node).KnownInvalid() {
			return HeaderRejected, ruleError(ErrDuplicateBlock,
				fmt.Sprintf("header %v already known invalid",
					blockHash))
		}
		return HeaderDuplicate, nil
	}

	parent := b.index.LookupNode(&header.ParentRoot)
	if parent == nil {
		return HeaderOrphan, nil
	}
	if b.index.NodeStatus(parent).KnownInvalid() {
		return HeaderRejected, ruleError(ErrInvalidAncestor,
			fmt.Sprintf("header %v extends invalid block %v",
				blockHash, header.ParentRoot))
	}

	node := newBlockNode(header, parent)
	b.index.AddNode(node)
	if err := b.checkHeaderSanity(node, header); err != nil {
		return HeaderRejected, err
	}

	b.maybeUpdateBestHeader(node)

	// A body may already be parked in the orphan pool waiting for this
	// header.  The header alone is enough to link it into the tree.
	if err := b.processOrphans(&blockHash, flags); err != nil {
		log.Warnf("Failed to process orphans waiting on header %v: %v",
			blockHash, err)
	}
	return HeaderAccepted, nil
}

// maybeUpdateBestHeader advances the best known header when the passed node
// carries more cumulative work.  A cached header whose branch has been
// poisoned is re-derived first so it cannot shadow live candidates.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) maybeUpdateBestHeader(node *blockNode) {
	best := b.bestHeader
	if best != nil && b.index.NodeStatus(best).KnownInvalid() {
		best = b.searchBestHeader()
	}
	if best == nil || betterCandidate(node, best) {
		best = node
	}
	b.bestHeader = best
}

// PreverifyBlock runs the body-internal checks for a block whose header is
// already linked in the tree, without touching chain topology.  Download
// workers call it concurrently so independent candidates prove in parallel;
// the later ProcessBlock call finds the recorded result and commits without
// redoing the work.  Blocks whose headers are not linked yet are skipped,
// not failed.
//
// This function is safe for concurrent access.
func (b *BlockChain) PreverifyBlock(block *types.SerializedBlock) error {
	node := b.index.LookupNode(block.Hash())
	if node == nil || node.parent == nil {
		return nil
	}
	return b.verifyBody(node, block)
}

// ProcessBlock is the main workhorse for handling insertion of new blocks
// into the block chain.  It includes functionality such as rejecting
// duplicate blocks, ensuring blocks follow all rules, orphan handling, and
// insertion into the block chain along with best chain selection and
// reorganization.
//
// When no errors occurred during processing, the first return value indicates
// whether or not the block is on the main chain and the second indicates
// whether or not the block is an orphan.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlock(block *types.SerializedBlock, flags BehaviorFlags) (bool, bool, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	blockHash := block.Hash()
	log.Tracef("Processing block %v", blockHash)

	// The block must not already exist with a stored body, and it must
	// not already be waiting in the orphan pool.
	if node := b.index.LookupNode(blockHash); node != nil {
		status := b.index.NodeStatus(node)
		if status.KnownInvalid() {
			return false, false, ruleError(ErrDuplicateBlock,
				fmt.Sprintf("block %v already known invalid",
					blockHash))
		}
		if status.HaveData() {
			if b.bestChain.Contains(node) {
				return false, false, ruleError(ErrDuplicateBlock,
					fmt.Sprintf("already have block %v",
						blockHash))
			}
			// The body is already stored but its branch has not won
			// yet, such as when delivery outran an ancestor.  The
			// selector owns it now; re-delivery is not a protocol
			// violation.
			log.Debugf("Block %v already stored awaiting chain "+
				"selection", blockHash)
			return false, false, nil
		}
	}
	if b.IsKnownOrphan(blockHash) {
		return false, false, ruleError(ErrDuplicateBlock,
			fmt.Sprintf("already have block (orphan) %v", blockHash))
	}

	// Handle orphan blocks.
	parentHash := &block.Block().Header.ParentRoot
	if !b.index.HaveBlock(parentHash) {
		log.Infof("Adding orphan block %v with parent %v", blockHash,
			parentHash)
		b.addOrphanBlock(block)
		return false, true, nil
	}

	isMainChain, err := b.maybeAcceptBlock(block, flags)
	if err != nil {
		return false, false, err
	}

	// Accept any orphan blocks that depend on this block (they are no
	// longer orphans) and repeat for those accepted blocks until there
	// are no more.
	err = b.processOrphans(blockHash, flags)
	if err != nil {
		return false, false, err
	}

	log.Debugf("Accepted block %v", blockHash)
	return isMainChain, false, nil
}

// maybeAcceptBlock potentially accepts a block into the block chain and,
// if accepted, returns whether or not it is on the main chain.  It performs
// several validation checks which depend on its position within the block
// chain before adding it.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) maybeAcceptBlock(block *types.SerializedBlock, flags BehaviorFlags) (bool, error) {
	header := &block.Block().Header
	parent := b.index.LookupNode(&header.ParentRoot)
	if parent == nil {
		return false, AssertError(fmt.Sprintf("maybeAcceptBlock "+
			"called with unknown parent %v", header.ParentRoot))
	}
	if b.index.NodeStatus(parent).KnownInvalid() {
		return false, ruleError(ErrInvalidAncestor, fmt.Sprintf(
			"block %v extends invalid block %v", block.Hash(),
			header.ParentRoot))
	}

	// The node may already exist from headers-first sync; otherwise link
	// a new one.
	node := b.index.LookupNode(block.Hash())
	if node == nil {
		node = newBlockNode(header, parent)
		b.index.AddNode(node)
	}
	if err := b.checkHeaderSanity(node, header); err != nil {
		return false, err
	}

	// Connect the block to the chain, which may cause a reorg.
	isMainChain, err := b.connectBestChain(node, block, flags)
	if err != nil {
		return false, err
	}

	b.maybeUpdateBestHeader(node)
	b.sendNotification(BlockAccepted, &BlockAcceptedNotifyData{
		Block:       block,
		IsMainChain: isMainChain,
	})
	return isMainChain, nil
}

// processOrphans determines if there are any orphans which depend on the
// passed block hash (they are no longer orphans if true) and potentially
// accepts them.  It repeats the process for the newly accepted blocks (to
// detect further orphans which may no longer be orphans) until there are no
// more.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) processOrphans(h *hash.Hash, flags BehaviorFlags) error {
	// Start with processing at least the passed hash.  Leave a little
	// room for additional orphan blocks that need to be processed without
	// needing to grow the array in the common case.
	processHashes := make([]*hash.Hash, 0, 10)
	processHashes = append(processHashes, h)
	for len(processHashes) > 0 {
		processHash := processHashes[0]
		processHashes[0] = nil
		processHashes = processHashes[1:]

		// Look up all orphans that are parented by the block we just
		// accepted.  An indexing for loop is intentionally used over
		// a range here as range does not reevaluate the slice on each
		// iteration nor does it adjust the index for the modified
		// slice.
		for i := 0; i < len(b.prevOrphans[*processHash]); i++ {
			orphan := b.prevOrphans[*processHash][i]
			if orphan == nil {
				log.Warnf("Found a nil entry at index %d in "+
					"the orphan dependency list for block %v",
					i, processHash)
				continue
			}

			// Remove the orphan from the orphan pool.
			orphanHash := orphan.block.Hash()
			b.removeOrphanBlock(orphan)
			i--

			// Potentially accept the block into the block chain.
			_, err := b.maybeAcceptBlock(orphan.block, flags)
			if err != nil {
				// A bad orphan invalidates only its own branch;
				// siblings of the accepted parent keep going.
				if IsRuleError(err) {
					log.Debugf("Rejected orphan block %v: %v",
						orphanHash, err)
					continue
				}
				return err
			}

			// Add this block to the list of blocks to process so
			// any orphan blocks that depend on this block are
			// handled too.
			processHashes = append(processHashes, orphanHash)
		}
	}
	return nil
}
