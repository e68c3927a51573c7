// Copyright (c) 2017-2020 The randchain developers

package blkmgr

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/message"
)

// maxKnownInventory is the per-peer bound on remembered announced inventory.
// The cache only suppresses redundant relays, so evicting old entries is
// harmless.
const maxKnownInventory = 1000

// peerState tracks the block manager's view of one connected peer.  All
// fields are owned by the block handler goroutine.
type peerState struct {
	peer Peer

	// syncCandidate is whether the peer can serve as the sync peer.
	syncCandidate bool

	// lastHeight is the best chain height the peer is known to have,
	// seeded from the version handshake and advanced as the peer
	// announces or delivers blocks.
	lastHeight uint64

	// lastAnnouncedBlock is the final block hash of the most recent inv
	// the peer sent.  Its height is resolved lazily once the block is
	// known and folded into lastHeight.
	lastAnnouncedBlock *hash.Hash

	// banScore accumulates protocol violations.  Crossing the configured
	// threshold disconnects and bans the peer.
	banScore uint32

	// knownInventory remembers what the peer has announced to us or been
	// sent by us, so relays skip peers that already have the data.
	knownInventory *lru.Cache
}

func newPeerState(p Peer) (*peerState, error) {
	cache, err := lru.New(maxKnownInventory)
	if err != nil {
		return nil, err
	}
	return &peerState{
		peer:           p,
		syncCandidate:  true,
		lastHeight:     p.StartHeight(),
		knownInventory: cache,
	}, nil
}

// addKnownInventory records that the peer is aware of the passed inventory.
func (sp *peerState) addKnownInventory(iv *message.InvVect) {
	sp.knownInventory.Add(iv.Hash, struct{}{})
}

// isKnownInventory reports whether the peer is already aware of the passed
// inventory.
func (sp *peerState) isKnownInventory(iv *message.InvVect) bool {
	return sp.knownInventory.Contains(iv.Hash)
}

// updateHeight raises the peer's known height, never lowering it.
func (sp *peerState) updateHeight(height uint64) {
	if height > sp.lastHeight {
		sp.lastHeight = height
	}
}

// addBanScore accumulates misbehavior points against the peer and, once the
// threshold is crossed, bans and disconnects it.  A zero threshold disables
// banning.
func (b *BlockManager) addBanScore(sp *peerState, points uint32, reason string) {
	if points == 0 || b.banThreshold == 0 {
		return
	}

	sp.banScore += points
	log.Debugf("Misbehaving peer %s: %s -- ban score %d", sp.peer.Addr(),
		reason, sp.banScore)
	if sp.banScore < b.banThreshold {
		return
	}

	log.Warnf("Peer %s exceeded ban threshold (%d) -- banning and "+
		"disconnecting", sp.peer.Addr(), b.banThreshold)
	b.banned[sp.peer.Addr()] = time.Now().Add(b.banDuration)
	sp.peer.Disconnect()
}

// isBanned reports whether the address currently sits out a ban, dropping
// the entry once the ban has lapsed.
func (b *BlockManager) isBanned(addr string) bool {
	until, exists := b.banned[addr]
	if !exists {
		return false
	}
	if time.Now().After(until) {
		delete(b.banned, addr)
		return false
	}
	return true
}

// lookupPeer returns the state for a peer previously registered through
// AddPeer, or an error for strays.
func (b *BlockManager) lookupPeer(p Peer) (*peerState, error) {
	sp, exists := b.peers[p.ID()]
	if !exists {
		return nil, fmt.Errorf("unknown peer %s (id %d)", p.Addr(), p.ID())
	}
	return sp, nil
}
