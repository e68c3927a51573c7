// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"fmt"
	"time"

	"github.com/randchain/randchaind/core/blockchain"
)

// handleBlockMsg handles block messages from all peers.
func (b *BlockManager) handleBlockMsg(bmsg *blockMsg) {
	sp, err := b.lookupPeer(bmsg.peer)
	if err != nil {
		log.Warnf("Received block message from unknown peer %s",
			bmsg.peer.Addr())
		return
	}

	// If we didn't ask for this block then the peer is misbehaving.
	blockHash := bmsg.block.Hash()
	req := b.requests.complete(blockHash)
	if req == nil {
		log.Warnf("Got unrequested block %v from %s -- disconnecting",
			blockHash, sp.peer.Addr())
		sp.peer.Disconnect()
		return
	}
	if req.peerID != sp.peer.ID() {
		// Delivered by a different peer than asked.  Take the data,
		// the original assignment is already released above.
		log.Debugf("Block %v delivered by peer %s instead of the "+
			"requested id %d", blockHash, sp.peer.Addr(), req.peerID)
	}
	metricsInflight.Update(int64(b.requests.size()))

	// Process the block to include validation, best chain selection,
	// orphan handling, etc.
	_, isOrphan, err := b.chain.ProcessBlock(bmsg.block, blockchain.BFNone)
	if err != nil {
		// When the error is a rule error, it means the block was
		// simply rejected as opposed to something actually going
		// wrong, so log it as such and penalize the peer.  Otherwise,
		// something really did go wrong, so log it as an actual error.
		if blockchain.IsRuleError(err) {
			log.Infof("Rejected block %v from %s: %v", blockHash,
				sp.peer.Addr(), err)
			metricsRejectedBlocks.Inc(1)
			b.addBanScore(sp, 50, fmt.Sprintf("invalid block %v", blockHash))
		} else {
			log.Errorf("Failed to process block %v: %v", blockHash, err)
		}
		return
	}

	metricsProcessedBlocks.Inc(1)
	metricsOrphans.Update(int64(b.chain.GetOrphansTotal()))

	if isOrphan {
		// A block arrived whose parent the header tree has never
		// seen.  Request the headers bridging our chain to the orphan
		// root from the peer that sent it.
		orphanRoot := b.chain.GetOrphanRoot(blockHash)
		locator := b.chain.LatestBlockLocator()
		if err := sp.peer.PushGetHeaders(locator, orphanRoot); err != nil {
			log.Warnf("Failed to push getheaders for the orphan "+
				"block: %v", err)
		}
	} else {
		// When the block is not an orphan, log information about it.
		b.progressLogger.LogBlockHeight(bmsg.block)

		if hdr := bmsg.block.Block().Header; hdr.Height > 0 {
			sp.updateHeight(hdr.Height)
		}
	}

	if sp == b.syncPeer {
		b.lastProgressTime = time.Now()
	}

	// Keep the download pipeline full and settle the sync phase when
	// everything has drained.
	if b.requests.size() < minInFlightBlocks {
		b.fetchBlocks()
	}
	b.maybeAdvanceState()
}
