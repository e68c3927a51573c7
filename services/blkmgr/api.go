// Copyright (c) 2017-2020 The randchain developers

package blkmgr

import (
	"errors"
	"sync/atomic"

	"github.com/randchain/randchaind/core/blockchain"
	"github.com/randchain/randchaind/core/message"
	"github.com/randchain/randchaind/core/types"
)

// ErrShuttingDown is returned by the exported calls when the block manager
// has been stopped before the call could be serviced.
var ErrShuttingDown = errors.New("block manager is shutting down")

// GetChain returns the chain instance the manager drives.  Read-only chain
// queries (snapshots, locators, block lookups) are safe directly; mutations
// must go through ProcessBlock.
func (b *BlockManager) GetChain() *blockchain.BlockChain {
	return b.chain
}

// SyncState returns the current phase of synchronization.
//
// This function is safe for concurrent access.
func (b *BlockManager) SyncState() SyncState {
	return SyncState(atomic.LoadInt32(&b.syncState))
}

// AddPeer hands a newly negotiated peer to the block manager.
//
// This function is safe for concurrent access.
func (b *BlockManager) AddPeer(p Peer) {
	if atomic.LoadInt32(&b.shutdown) != 0 {
		return
	}
	select {
	case b.msgChan <- &newPeerMsg{peer: p}:
	case <-b.quit:
	}
}

// RemovePeer tells the block manager a peer is gone.
//
// This function is safe for concurrent access.
func (b *BlockManager) RemovePeer(p Peer) {
	if atomic.LoadInt32(&b.shutdown) != 0 {
		return
	}
	select {
	case b.msgChan <- &donePeerMsg{peer: p}:
	case <-b.quit:
	}
}

// QueueInv adds the passed inv message and peer to the block handling queue.
//
// This function is safe for concurrent access.
func (b *BlockManager) QueueInv(inv *message.MsgInv, p Peer) {
	if atomic.LoadInt32(&b.shutdown) != 0 {
		return
	}
	select {
	case b.msgChan <- &invMsg{inv: inv, peer: p}:
	case <-b.quit:
	}
}

// QueueHeaders adds the passed headers message and peer to the block
// handling queue.
//
// This function is safe for concurrent access.
func (b *BlockManager) QueueHeaders(headers *message.MsgHeaders, p Peer) {
	if atomic.LoadInt32(&b.shutdown) != 0 {
		return
	}
	select {
	case b.msgChan <- &headersMsg{headers: headers, peer: p}:
	case <-b.quit:
	}
}

// QueueBlock adds the passed block and peer to the block handling queue.
// The block's proof is verified on the calling goroutine first, so bodies
// arriving from different peers prove in parallel and the serialized commit
// inside the handler finds the result already recorded.  When reply is not
// nil it receives a single send once the block has been fully handled, which
// lets the peer's read loop apply backpressure.
//
// This function is safe for concurrent access.
func (b *BlockManager) QueueBlock(block *types.SerializedBlock, p Peer, reply chan struct{}) {
	if atomic.LoadInt32(&b.shutdown) != 0 {
		if reply != nil {
			reply <- struct{}{}
		}
		return
	}

	// Best effort: a failure here surfaces again inside the handler with
	// peer attribution, so it is not reported twice.
	if err := b.chain.PreverifyBlock(block); err != nil {
		log.Debugf("Preverify of block %v failed: %v", block.Hash(), err)
	}

	select {
	case b.msgChan <- &blockMsg{block: block, peer: p, reply: reply}:
	case <-b.quit:
		if reply != nil {
			reply <- struct{}{}
		}
	}
}

// ProcessBlock makes use of ProcessBlock on an internal instance of a block
// chain.  It is the entry point for locally produced blocks, which take the
// same acceptance path as blocks arriving from the network.
//
// This function is safe for concurrent access.
func (b *BlockManager) ProcessBlock(block *types.SerializedBlock, flags blockchain.BehaviorFlags) (bool, bool, error) {
	reply := make(chan processBlockResponse, 1)
	select {
	case b.msgChan <- processBlockMsg{block: block, flags: flags, reply: reply}:
	case <-b.quit:
		return false, false, ErrShuttingDown
	}
	select {
	case response := <-reply:
		return response.isMainChain, response.isOrphan, response.err
	case <-b.quit:
		return false, false, ErrShuttingDown
	}
}

// IsCurrent returns whether or not the block manager believes it is synced
// with the connected peers.
//
// This function is safe for concurrent access.
func (b *BlockManager) IsCurrent() bool {
	reply := make(chan bool, 1)
	select {
	case b.msgChan <- isCurrentMsg{reply: reply}:
	case <-b.quit:
		return false
	}
	select {
	case current := <-reply:
		return current
	case <-b.quit:
		return false
	}
}

// ConnectedPeers returns the block manager's view of the connected peers.
//
// This function is safe for concurrent access.
func (b *BlockManager) ConnectedPeers() []*PeerInfo {
	reply := make(chan []*PeerInfo, 1)
	select {
	case b.msgChan <- getPeersMsg{reply: reply}:
	case <-b.quit:
		return nil
	}
	select {
	case infos := <-reply:
		return infos
	case <-b.quit:
		return nil
	}
}
