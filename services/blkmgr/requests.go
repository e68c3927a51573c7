// Copyright (c) 2017-2020 The randchain developers

package blkmgr

import (
	"time"

	"github.com/randchain/randchaind/common/hash"
)

const (
	// maxInflightPerPeer caps how many block downloads may be assigned to
	// a single peer at once.  Further work spills over to other peers or
	// waits.
	maxInflightPerPeer = 16

	// requestTimeout is how long a peer has to deliver a requested block
	// before the request is reclaimed and handed to someone else.
	requestTimeout = 30 * time.Second
)

// pendingRequest is one outstanding block download.
type pendingRequest struct {
	hash     hash.Hash
	peerID   int32
	deadline time.Time
}

// requestTracker bookkeeps outstanding block downloads across all peers.  A
// hash is in flight with at most one peer at a time.  All methods are called
// from the block handler goroutine only.
type requestTracker struct {
	pending map[hash.Hash]*pendingRequest
	perPeer map[int32]int
}

func newRequestTracker() *requestTracker {
	return &requestTracker{
		pending: make(map[hash.Hash]*pendingRequest),
		perPeer: make(map[int32]int),
	}
}

// inflight reports whether the hash is already requested from some peer.
func (rt *requestTracker) inflight(h *hash.Hash) bool {
	_, exists := rt.pending[*h]
	return exists
}

// peerLoad returns the number of outstanding requests assigned to the peer.
func (rt *requestTracker) peerLoad(peerID int32) int {
	return rt.perPeer[peerID]
}

// size returns the total number of outstanding requests.
func (rt *requestTracker) size() int {
	return len(rt.pending)
}

// track records a new outstanding request.  It returns false without
// recording anything when the hash is already in flight, which keeps the
// no-duplicate-download invariant in one place.
func (rt *requestTracker) track(h *hash.Hash, peerID int32, deadline time.Time) bool {
	if rt.inflight(h) {
		return false
	}
	rt.pending[*h] = &pendingRequest{hash: *h, peerID: peerID, deadline: deadline}
	rt.perPeer[peerID]++
	return true
}

// complete removes the outstanding request for the hash, returning it so the
// caller can tell which peer delivered and whether the block was asked for
// at all.
func (rt *requestTracker) complete(h *hash.Hash) *pendingRequest {
	req, exists := rt.pending[*h]
	if !exists {
		return nil
	}
	delete(rt.pending, *h)
	rt.decPeer(req.peerID)
	return req
}

// releasePeer drops every outstanding request assigned to the peer and
// returns the freed hashes so they can be rescheduled elsewhere.
func (rt *requestTracker) releasePeer(peerID int32) []hash.Hash {
	var freed []hash.Hash
	for h, req := range rt.pending {
		if req.peerID == peerID {
			freed = append(freed, h)
			delete(rt.pending, h)
		}
	}
	delete(rt.perPeer, peerID)
	return freed
}

// expireDue removes every request whose deadline has passed and returns
// them.  The caller penalizes the slow peers and reschedules the hashes.
func (rt *requestTracker) expireDue(now time.Time) []*pendingRequest {
	var expired []*pendingRequest
	for h, req := range rt.pending {
		if now.After(req.deadline) {
			expired = append(expired, req)
			delete(rt.pending, h)
			rt.decPeer(req.peerID)
		}
	}
	return expired
}

func (rt *requestTracker) decPeer(peerID int32) {
	if n := rt.perPeer[peerID]; n > 1 {
		rt.perPeer[peerID] = n - 1
	} else {
		delete(rt.perPeer, peerID)
	}
}
