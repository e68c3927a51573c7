// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"sync/atomic"
)

// handleNewPeerMsg deals with new peers that have signalled they may be
// considered as a sync peer (they have already successfully negotiated).  It
// also starts syncing if needed.  It is invoked from the blockHandler
// goroutine.
func (b *BlockManager) handleNewPeerMsg(p Peer) {
	// Ignore if in the process of shutting down.
	if atomic.LoadInt32(&b.shutdown) != 0 {
		return
	}

	if b.isBanned(p.Addr()) {
		log.Debugf("Refusing banned peer %s", p.Addr())
		p.Disconnect()
		return
	}
	if _, exists := b.peers[p.ID()]; exists {
		log.Warnf("Duplicate registration for peer %s (id %d)",
			p.Addr(), p.ID())
		return
	}

	sp, err := newPeerState(p)
	if err != nil {
		log.Errorf("Failed to track peer %s: %v", p.Addr(), err)
		p.Disconnect()
		return
	}
	b.peers[p.ID()] = sp
	metricsConnectedPeers.Update(int64(len(b.peers)))
	log.Infof("New valid peer %s (id %d, height %d)", p.Addr(), p.ID(),
		sp.lastHeight)

	// Start syncing by choosing the best candidate if needed.
	if b.syncPeer == nil {
		b.startSync()
	}
}

// handleDonePeerMsg deals with peers that have signalled they are done.  It
// removes the peer as a candidate for syncing and in the case where it was
// the current sync peer, attempts to select a new best peer to sync from.
// It is invoked from the blockHandler goroutine.
func (b *BlockManager) handleDonePeerMsg(p Peer) {
	sp, exists := b.peers[p.ID()]
	if !exists {
		log.Warnf("Received done peer message for unknown peer %s",
			p.Addr())
		return
	}
	delete(b.peers, p.ID())
	metricsConnectedPeers.Update(int64(len(b.peers)))
	log.Infof("Lost peer %s (id %d)", p.Addr(), p.ID())

	// Hand the peer's outstanding downloads to someone else.
	freed := b.requests.releasePeer(p.ID())
	metricsInflight.Update(int64(b.requests.size()))

	if b.syncPeer == sp {
		// The connection is already gone; just pick a successor.
		b.syncPeer = nil
		b.setSyncState(StateIdle)
		b.startSync()
	}
	if len(freed) > 0 {
		b.fetchBlocks()
	}
}
