// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"fmt"
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/blockchain"
	"github.com/randchain/randchaind/core/message"
)

// handleHeadersMsg handles headers messages from all peers.  Accepted
// headers extend the best known header; once a batch comes back short the
// peer has nothing further and the manager moves on to fetching bodies.
func (b *BlockManager) handleHeadersMsg(hmsg *headersMsg) {
	sp, err := b.lookupPeer(hmsg.peer)
	if err != nil {
		log.Warnf("Received headers message from unknown peer %s",
			hmsg.peer.Addr())
		return
	}

	numHeaders := len(hmsg.headers.Headers)
	if numHeaders == 0 {
		// An empty reply means the peer has nothing past our locator.
		if sp == b.syncPeer {
			b.lastProgressTime = time.Now()
			b.fetchBlocks()
		}
		return
	}

	var accepted, duplicates int
	sawOrphan := false
	for _, header := range hmsg.headers.Headers {
		status, err := b.chain.ProcessBlockHeader(header, blockchain.BFNone)
		switch status {
		case blockchain.HeaderAccepted:
			accepted++
			sp.updateHeight(header.Height)

		case blockchain.HeaderDuplicate:
			duplicates++

		case blockchain.HeaderOrphan:
			// Headers are expected to connect in order; a gap
			// means our locator was behind the peer's fork point.
			// Ask again from scratch rather than walking the gap
			// one announcement at a time.
			sawOrphan = true

		case blockchain.HeaderRejected:
			b.addBanScore(sp, 50, fmt.Sprintf("invalid header: %v", err))
			return
		}
	}

	log.Debugf("Received %d headers from %s (%d new, %d duplicate)",
		numHeaders, sp.peer.Addr(), accepted, duplicates)

	if sawOrphan {
		locator := b.chain.LatestBlockLocator()
		if err := sp.peer.PushGetHeaders(locator, &hash.ZeroHash); err != nil {
			log.Errorf("Failed to push getheaders to peer %s: %v",
				sp.peer.Addr(), err)
		}
		return
	}

	if accepted > 0 && sp == b.syncPeer {
		b.lastProgressTime = time.Now()
	}

	// A full batch means the peer probably has more headers for us.
	if numHeaders >= message.MaxBlockHeadersPerMsg && accepted > 0 {
		locator := b.chain.BestHeaderLocator()
		if err := sp.peer.PushGetHeaders(locator, &hash.ZeroHash); err != nil {
			log.Errorf("Failed to push getheaders to peer %s: %v",
				sp.peer.Addr(), err)
		}
		b.setSyncState(StateHeadersSyncing)
		return
	}

	// The header frontier is as far ahead as this peer can take it; start
	// pulling the bodies in.
	b.fetchBlocks()
}
