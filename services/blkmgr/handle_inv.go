// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/message"
)

// handleInvMsg handles inv messages from all peers.  We examine the
// inventory advertised by the remote peer and act accordingly.
func (b *BlockManager) handleInvMsg(imsg *invMsg) {
	sp, err := b.lookupPeer(imsg.peer)
	if err != nil {
		log.Warnf("Received inv message from unknown peer %s",
			imsg.peer.Addr())
		return
	}

	// Attempt to find the final block in the inventory list.  There may
	// not be one.
	lastBlock := -1
	invVects := imsg.inv.InvList
	for i := len(invVects) - 1; i >= 0; i-- {
		if invVects[i].Type == message.InvTypeBlock {
			lastBlock = i
			break
		}
	}

	// If this inv contains a block announcement, and this isn't coming
	// from our current sync peer or we're current, then update the last
	// announced block for this peer.  We'll use this information later to
	// update the heights of peers based on blocks we've accepted that
	// they previously announced.
	if lastBlock != -1 && (sp != b.syncPeer || b.current()) {
		sp.lastAnnouncedBlock = &invVects[lastBlock].Hash
	}

	// Ignore invs from peers that aren't the sync peer if we are not
	// current.  Helps prevent fetching a mass of orphans.
	if sp != b.syncPeer && !b.current() {
		return
	}

	// If our chain is current and a peer announces a block we already
	// know of, then update their current block height.
	if lastBlock != -1 && b.current() {
		blkHeight, err := b.chain.BlockHeightByHash(&invVects[lastBlock].Hash)
		if err == nil {
			sp.updateHeight(blkHeight)
		}
	}

	// Request the advertised inventory if we don't already have it, and
	// request the header gap when a peer announces something that does
	// not connect yet.
	requested := false
	deadline := time.Now().Add(requestTimeout)
	var gdinv []*message.InvVect
	for i, iv := range invVects {
		// Ignore unsupported inventory types.
		if iv.Type != message.InvTypeBlock {
			continue
		}

		// Add the inventory to the cache of known inventory for the
		// peer.
		sp.addKnownInventory(iv)

		if b.chain.HaveBlock(&iv.Hash) {
			// The block is an orphan we already have.  The peer is
			// signalling the gap before it is longer than one inv;
			// request headers from our frontier up to the orphan
			// root so the gap gets filled.
			if b.chain.IsKnownOrphan(&iv.Hash) {
				orphanRoot := b.chain.GetOrphanRoot(&iv.Hash)
				locator := b.chain.LatestBlockLocator()
				err := sp.peer.PushGetHeaders(locator, orphanRoot)
				if err != nil {
					log.Errorf("Failed to push getheaders "+
						"for orphan chain: %v", err)
				}
				continue
			}

			// We already have the final block advertised by this
			// inventory message, so ask the peer for anything it
			// has past it.
			if i == lastBlock && !b.chain.MainChainHasBlock(&iv.Hash) {
				locator := b.chain.LatestBlockLocator()
				err := sp.peer.PushGetHeaders(locator, &hash.ZeroHash)
				if err != nil {
					log.Errorf("Failed to push getheaders: %v", err)
				}
			}
			continue
		}

		// Request the block if there is not already a pending request
		// for it.  The announcement of a previously unknown block
		// regresses the sync phase until the download completes.
		h := iv.Hash
		if b.requests.track(&h, sp.peer.ID(), deadline) {
			gdinv = append(gdinv, message.NewInvVect(message.InvTypeBlock, &h))
			requested = true
		}
	}

	if len(gdinv) > 0 {
		if err := sp.peer.PushGetData(gdinv); err != nil {
			log.Warnf("Failed to push getdata to peer %s: %v",
				sp.peer.Addr(), err)
		}
		metricsInflight.Update(int64(b.requests.size()))
	}
	if requested {
		b.setSyncState(StateBlocksSyncing)
	}
}
