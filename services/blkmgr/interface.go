// Copyright (c) 2017-2020 The randchain developers

package blkmgr

import (
	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/blockchain"
	"github.com/randchain/randchaind/core/message"
)

// Peer is the surface the block manager needs from a connected peer.  The
// p2p layer hands peers in through AddPeer; tests plug in fakes.  All push
// methods queue for asynchronous delivery and must be safe for concurrent
// use.
type Peer interface {
	// ID returns the connection-unique peer identifier.
	ID() int32

	// Addr returns the remote address in host:port form.
	Addr() string

	// StartHeight returns the chain height the peer claimed during
	// version negotiation.
	StartHeight() uint64

	// PushGetHeaders queues a getheaders request built from the passed
	// locator and stop hash.
	PushGetHeaders(locator blockchain.BlockLocator, hashStop *hash.Hash) error

	// PushGetData queues a getdata request for the passed inventory.
	PushGetData(inv []*message.InvVect) error

	// PushInv queues an inv announcement to the peer.
	PushInv(inv []*message.InvVect) error

	// Disconnect tears the connection down.  The p2p layer is expected
	// to deliver a matching RemovePeer afterwards.
	Disconnect()
}

// PeerInfo describes a connected peer as seen by the block manager.  The
// administrative RPC surface serves it.
type PeerInfo struct {
	ID        int32  `json:"id"`
	Addr      string `json:"addr"`
	Height    uint64 `json:"height"`
	BanScore  uint32 `json:"banscore"`
	Inflight  int    `json:"inflight"`
	SyncPeer  bool   `json:"syncpeer"`
	Candidate bool   `json:"candidate"`
}
